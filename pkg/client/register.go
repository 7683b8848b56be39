package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
	"github.com/BlueBird-project/ke-client-go/pkg/registry"
	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

// Register makes sure the knowledge base and every declared interaction are
// known to the broker. It does nothing when already registered.
func (r *Runtime) Register(ctx context.Context) error {
	r.regMu.Lock()
	defer r.regMu.Unlock()

	if r.Connected() {
		return nil
	}
	if err := r.registerKnowledgeBase(ctx); err != nil {
		return err
	}
	if err := r.reconcile(ctx); err != nil {
		return err
	}
	r.setRegistered(true, true)
	r.logger.Info("knowledge base registered", "interactions", len(r.registry.Interactions()))
	return nil
}

func (r *Runtime) registerKnowledgeBase(ctx context.Context) error {
	const op = "register knowledge base"

	resp, err := r.client.ListInteractions(ctx)
	r.count("list_interactions", resp, err)
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		r.logger.Debug("knowledge base already registered")
	case http.StatusNotFound:
		catalog := r.registry.Catalog()
		req := RegisterKnowledgeBaseRequest{
			KnowledgeBaseID:          r.opts.KnowledgeBaseID,
			KnowledgeBaseName:        catalog.KBName,
			KnowledgeBaseDescription: catalog.KBDescription,
			ReasonerLevel:            catalog.ReasonerLevel,
		}
		created, err := r.client.RegisterKnowledgeBase(ctx, req)
		r.count("register_knowledge_base", created, err)
		if err != nil {
			return err
		}
		if created.StatusCode != http.StatusOK {
			return kerrors.Broker(op, nil, "registration failed, status_code: %d, message: %s", created.StatusCode, created.Message())
		}
		r.logger.Info("knowledge base created", "name", catalog.KBName, "reasoner_level", catalog.ReasonerLevel)
		r.record(ctx, store.EventTypeKBRegistered, nil, "", req)
	case http.StatusBadRequest:
		return kerrors.Broker(op, nil, "registration rejected, status_code: %d, message: %s", resp.StatusCode, resp.Message())
	default:
		return kerrors.Broker(op, nil, "unexpected status_code: %d, message: %s", resp.StatusCode, resp.Message())
	}

	r.setRegistered(true, false)
	return nil
}

// reconcile deletes every interaction the broker holds for this knowledge
// base and registers the local declarations fresh.
func (r *Runtime) reconcile(ctx context.Context) error {
	const op = "check registered interactions"

	resp, err := r.client.ListInteractions(ctx)
	r.count("list_interactions", resp, err)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return kerrors.Broker(op, nil, "can't check registered interactions, status_code: %d, message: %s", resp.StatusCode, resp.Message())
	}

	var existing []InteractionInfo
	if len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := json.Unmarshal(resp.Body, &existing); err != nil {
			return kerrors.Broker(op, err, "invalid interaction list: %v", err)
		}
	}

	for _, info := range existing {
		deleted, err := r.client.DeleteInteraction(ctx, info.KnowledgeInteractionID)
		r.count("delete_interaction", deleted, err)
		if err != nil {
			return err
		}
		if !deleted.OK() {
			return kerrors.Broker(op, nil, "failed to delete %s, status_code: %d, message: %s",
				info.KnowledgeInteractionID, deleted.StatusCode, deleted.Message())
		}
		r.logger.Debug("deleted broker interaction", "ki_id", info.KnowledgeInteractionID, "ki_name", info.KnowledgeInteractionName)
		r.record(ctx, store.EventTypeKIDeleted, nil, "", info)
	}

	r.registry.ResetIDs()
	for _, ki := range r.registry.Interactions() {
		if err := r.registerInteraction(ctx, ki); err != nil {
			return err
		}
	}
	return nil
}

func registrationBody(ki *registry.Interaction) map[string]any {
	body := map[string]any{
		"knowledgeInteractionName": ki.Name,
		"knowledgeInteractionType": ki.Kind.WireType(),
		ki.Kind.PatternKey():       ki.Pattern.PatternText(),
		"prefixes":                 ki.Prefixes,
	}
	if text, ok := ki.Pattern.ResultPatternText(); ok {
		body["resultGraphPattern"] = text
	}
	return body
}

func (r *Runtime) registerInteraction(ctx context.Context, ki *registry.Interaction) error {
	op := "register " + ki.Name

	resp, err := r.client.RegisterInteraction(ctx, registrationBody(ki))
	r.count("register_interaction", resp, err)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return kerrors.Broker(op, nil, "registration failed, status_code: %d, message: %s", resp.StatusCode, resp.Message())
	}

	var out RegisterInteractionResponse
	if err := resp.Decode(&out); err != nil {
		return kerrors.Broker(op, err, "invalid registration response: %v", err)
	}
	if out.KnowledgeInteractionID == "" {
		return kerrors.Broker(op, nil, "registration response has no knowledgeInteractionId")
	}
	if err := r.registry.Assign(ki.Name, out.KnowledgeInteractionID); err != nil {
		return err
	}

	r.logger.Info("knowledge interaction registered", "ki_name", ki.Name, "ki_type", ki.Kind.WireType(), "ki_id", out.KnowledgeInteractionID)
	r.record(ctx, store.EventTypeKIRegistered, ki, "", map[string]any{"type": ki.Kind.WireType()})
	return nil
}

// Invalidate forgets the broker registration so that the next Register
// creates it again. A replica calls it when it takes over from another one,
// whose reconciliation replaced every interaction id.
func (r *Runtime) Invalidate() {
	r.regMu.Lock()
	defer r.regMu.Unlock()
	r.setRegistered(false, false)
	r.registry.ResetIDs()
}

// Reconnect re-registers the knowledge base after the broker lost it.
// Concurrent callers share a single attempt. It returns an error wrapping
// ErrReconnectFailed when every attempt failed.
func (r *Runtime) Reconnect(ctx context.Context) error {
	_, err, _ := r.reconnects.Do("reconnect", func() (any, error) {
		return nil, r.reconnect(ctx)
	})
	return err
}

func (r *Runtime) reconnect(ctx context.Context) error {
	backoff := ReconnectBackoff(r.opts.RequestTimeout)
	r.logger.Warn("reconnecting to broker", "attempts", ReconnectAttempts)

	for attempt := 0; attempt < ReconnectAttempts; attempt++ {
		delay := backoff.Next(attempt)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}

		r.setRegistered(false, false)
		r.registry.ResetIDs()
		err := r.Register(ctx)

		payload := map[string]any{"attempt": attempt + 1, "delay_seconds": delay / time.Second}
		if err != nil {
			payload["error"] = err.Error()
			r.logger.Warn("reconnect attempt failed", "attempt", attempt+1, "delay", delay, "error", err)
		}
		r.record(ctx, store.EventTypeReconnectAttempted, nil, "", payload)

		if r.Connected() {
			KEReconnectsTotal.WithLabelValues(r.opts.KnowledgeBaseID, "success").Inc()
			r.logger.Info("reconnected to broker", "attempt", attempt+1)
			return nil
		}
		KEReconnectsTotal.WithLabelValues(r.opts.KnowledgeBaseID, "failure").Inc()
	}

	r.record(ctx, store.EventTypeReconnectFailed, nil, "", map[string]any{"attempts": ReconnectAttempts})
	r.logger.Error("reconnect failed", "attempts", ReconnectAttempts)
	return kerrors.New(kerrors.ClassDrift, "reconnect", kerrors.ErrReconnectFailed,
		"failed to reconnect after %d attempts", ReconnectAttempts)
}
