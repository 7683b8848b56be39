package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/BlueBird-project/ke-client-go/pkg/bindings"
	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
	"github.com/BlueBird-project/ke-client-go/pkg/registry"
	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

// Interaction finds a declared interaction of kind by its plain or
// role-qualified name.
func (r *Runtime) Interaction(kind registry.Kind, name string) (*registry.Interaction, error) {
	qualified := name
	if !strings.HasPrefix(name, kind.Role()+"-") {
		qualified = kind.Role() + "-" + name
	}
	if ki, ok := r.registry.Lookup(qualified); ok && ki.Kind == kind {
		return ki, nil
	}
	return nil, kerrors.Config("lookup "+qualified, nil, "%s is not declared", qualified)
}

// Ask sends values through an ASK interaction. When the broker leaves the
// top-level binding set empty, the bindings of the individual exchanges are
// returned instead.
func (r *Runtime) Ask(ctx context.Context, ki *registry.Interaction, values any) (*AskResult, error) {
	op := "ask " + ki.Name
	if ki.Kind != registry.KindAsk {
		return nil, kerrors.Contract(op, nil, "%s is a %s interaction", ki.Name, ki.Kind)
	}
	_, set, err := ki.Outgoing(values)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("ASK bindings", "ki_name", ki.Name, "bindings", set.Maps())

	resp, err := r.call(ctx, "ask", http.MethodPost, pathAsk, ki, set)
	if err != nil {
		return nil, err
	}
	if err := r.checkResponse(ctx, op, resp); err != nil {
		return nil, err
	}

	var res AskResult
	if err := resp.Decode(&res); err != nil {
		return nil, kerrors.Broker(op, err, "invalid ask response: %v", err)
	}
	if err := checkExchanges(op, res.ExchangeInfo); err != nil {
		return nil, err
	}
	if len(res.BindingSet) == 0 {
		for _, ei := range res.ExchangeInfo {
			res.BindingSet = append(res.BindingSet, ei.BindingSet...)
		}
	}
	if res.BindingSet == nil {
		res.BindingSet = bindings.Set{}
	}

	r.record(ctx, store.EventTypeAskSent, ki, "", map[string]any{
		"bindings": len(set), "results": len(res.BindingSet), "exchanges": len(res.ExchangeInfo),
	})
	return &res, nil
}

// Post sends values through a POST interaction. When the broker leaves the
// result binding set empty and a result pattern is declared, the complete
// result bindings of the individual exchanges are returned instead.
func (r *Runtime) Post(ctx context.Context, ki *registry.Interaction, values any) (*PostResult, error) {
	op := "post " + ki.Name
	if ki.Kind != registry.KindPost {
		return nil, kerrors.Contract(op, nil, "%s is a %s interaction", ki.Name, ki.Kind)
	}
	_, set, err := ki.Outgoing(values)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("POST bindings", "ki_name", ki.Name, "bindings", set.Maps())

	resp, err := r.call(ctx, "post", http.MethodPost, pathPost, ki, set)
	if err != nil {
		return nil, err
	}
	if err := r.checkResponse(ctx, op, resp); err != nil {
		return nil, err
	}

	var res PostResult
	if err := resp.Decode(&res); err != nil {
		return nil, kerrors.Broker(op, err, "invalid post response: %v", err)
	}
	if err := checkExchanges(op, res.ExchangeInfo); err != nil {
		return nil, err
	}
	if len(res.ResultBindingSet) == 0 && ki.Pattern.HasResultPattern() {
		for _, ei := range res.ExchangeInfo {
			for _, b := range ei.ResultBindingSet {
				if projected, ok := ki.Pattern.ResultBindings(b); ok {
					res.ResultBindingSet = append(res.ResultBindingSet, projected)
				}
			}
		}
	}
	if res.ResultBindingSet == nil {
		res.ResultBindingSet = bindings.Set{}
	}

	r.record(ctx, store.EventTypePostSent, ki, "", map[string]any{
		"bindings": len(set), "results": len(res.ResultBindingSet), "exchanges": len(res.ExchangeInfo),
	})
	return &res, nil
}

// call sends one request. A connection failure is retried once after
// ConnectionRetryDelay, then once more after a reconnect; the last error is
// returned. The interaction id is read again before every try.
func (r *Runtime) call(ctx context.Context, op, method, path string, ki *registry.Interaction, body any) (*Response, error) {
	send := func() (*Response, error) {
		kiID := ""
		if ki != nil {
			kiID = ki.ID()
		}
		resp, err := r.client.Do(ctx, method, path, kiID, body)
		r.count(op, resp, err)
		return resp, err
	}

	resp, err := send()
	if !r.retryable(ctx, err) {
		return resp, err
	}
	r.logger.Warn("broker connection failed, retrying", "operation", op, "delay", ConnectionRetryDelay, "error", err)
	if serr := r.sleep(ctx, ConnectionRetryDelay); serr != nil {
		return nil, serr
	}

	resp, err = send()
	if !r.retryable(ctx, err) {
		return resp, err
	}
	r.logger.Warn("broker connection failed again, reconnecting", "operation", op, "error", err)
	if rerr := r.Reconnect(ctx); rerr != nil {
		r.logger.Error("reconnect failed", "operation", op, "error", rerr)
	}
	return send()
}

func (r *Runtime) retryable(ctx context.Context, err error) bool {
	return err != nil && kerrors.IsTransport(err) && ctx.Err() == nil
}

// checkResponse turns a non-success status into an error. A 404 saying the
// broker forgot the knowledge base starts a reconnect first.
func (r *Runtime) checkResponse(ctx context.Context, op string, resp *Response) error {
	if resp.OK() {
		return nil
	}
	msg := resp.Message()
	if r.forgotten(resp) {
		r.logger.Warn("broker lost the knowledge base, reconnecting", "operation", op, "message", msg)
		if err := r.Reconnect(ctx); err != nil {
			r.logger.Error("reconnect failed", "operation", op, "error", err)
		}
		return kerrors.New(kerrors.ClassDrift, op, nil, "knowledge base unknown to broker, status_code: %d, message: %s", resp.StatusCode, msg)
	}
	return kerrors.Broker(op, nil, "request failed, status_code: %d, message: %s", resp.StatusCode, msg)
}

// checkExchanges fails on the first exchange the broker marked FAILED.
func checkExchanges(op string, infos []ExchangeInfo) error {
	for _, ei := range infos {
		if ei.Failed() {
			set := ei.BindingSet
			if len(set) == 0 {
				set = ei.ArgumentBindingSet
			}
			return kerrors.Broker(op, kerrors.ErrExchangeFailed, "knowledge exchange with %s failed: %s, bindings: %v",
				ei.KnowledgeBaseID, ei.FailedMessage, set.Maps())
		}
	}
	return nil
}
