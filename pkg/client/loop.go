package client

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

// Tick polls the broker once for a pending request and serves it. It
// reports whether the loop should continue. Failures of a single request
// are logged, not returned; only a transport failure or cancellation is.
func (r *Runtime) Tick(ctx context.Context) (bool, error) {
	resp, err := r.call(ctx, "handle", http.MethodGet, pathHandle, nil, nil)
	if err != nil {
		return false, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if err := r.dispatch(ctx, resp); err != nil {
			r.logger.Error("failed to handle request", "error", err)
		}
		return true, nil
	case http.StatusAccepted:
		r.logger.Debug("no pending requests, polling again")
		return true, nil
	case http.StatusGone:
		r.logger.Warn("knowledge base closed by broker, stopping handle loop", "delay", GoneDelay, "message", resp.Message())
		r.record(ctx, store.EventTypeKnowledgeBaseClosed, nil, "", map[string]any{"message": resp.Message()})
		_ = r.sleep(ctx, GoneDelay)
		return false, nil
	default:
		r.logger.Warn("unexpected handle status", "status", resp.StatusCode, "message", resp.Message(), "delay", RetryDelay)
		if r.forgotten(resp) {
			if err := r.Reconnect(ctx); err != nil {
				r.logger.Error("reconnect failed", "error", err)
			}
		}
		if err := r.sleep(ctx, RetryDelay); err != nil {
			return false, err
		}
		return true, nil
	}
}

func (r *Runtime) dispatch(ctx context.Context, resp *Response) error {
	var req HandleRequest
	if err := resp.Decode(&req); err != nil {
		return kerrors.Broker("handle", err, "invalid handle request: %v", err)
	}
	correlation := strconv.FormatInt(req.HandleRequestID, 10)

	ki, ok := r.registry.ByID(req.KnowledgeInteractionID)
	if !ok {
		name := r.describeID(req.KnowledgeInteractionID)
		KEHandledTotal.WithLabelValues(r.opts.KnowledgeBaseID, name, "unknown").Inc()
		return kerrors.Contract("handle", nil, "no handler for knowledge interaction %s (%s)", name, req.KnowledgeInteractionID)
	}

	op := "handle " + ki.Name
	start := time.Now()
	out, err := ki.Invoke(ctx, req.BindingSet)
	if err != nil {
		KEHandledTotal.WithLabelValues(r.opts.KnowledgeBaseID, ki.Name, "failed").Inc()
		r.record(ctx, store.EventTypeDispatchFailed, ki, correlation, map[string]any{"error": err.Error()})
		return err
	}

	reply, err := r.call(ctx, "handle_response", http.MethodPost, pathHandle, ki,
		HandleResponse{HandleRequestID: req.HandleRequestID, BindingSet: out})
	if err != nil {
		return err
	}
	if err := r.checkResponse(ctx, op, reply); err != nil {
		return err
	}

	KEHandledTotal.WithLabelValues(r.opts.KnowledgeBaseID, ki.Name, "ok").Inc()
	r.record(ctx, store.EventTypeRequestHandled, ki, correlation, map[string]any{
		"bindings": len(req.BindingSet), "results": len(out),
	})
	r.logger.Debug("request handled", "ki_name", ki.Name, "handle_request_id", req.HandleRequestID, "duration", time.Since(start))
	return nil
}

// Run polls until a tick stops the loop, ctx is cancelled or a transport
// failure survives its retries.
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("Start handler loop")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		more, err := r.Tick(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		if !more {
			r.logger.Info("handler loop finished")
			return nil
		}
	}
}

// Start runs the loop in the background. It fails with ErrAlreadyStarted
// while a loop is active. Options.OnLoopExit learns when it ends by itself.
func (r *Runtime) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	done, err := r.claim(cancel)
	if err != nil {
		cancel()
		return err
	}

	go func() {
		var err error
		defer func() {
			if r.opts.OnLoopExit != nil && !errors.Is(err, context.Canceled) {
				r.opts.OnLoopExit(err)
			}
		}()
		defer r.release(done)
		defer cancel()
		if err = r.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("handler loop stopped", "error", err)
		}
	}()
	return nil
}

// StartSync runs the loop on the calling goroutine. It fails with
// ErrAlreadyStarted while a loop is active.
func (r *Runtime) StartSync(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done, err := r.claim(cancel)
	if err != nil {
		return err
	}
	defer r.release(done)
	return r.Run(loopCtx)
}

// Stop cancels the active loop and waits for it to return.
func (r *Runtime) Stop() {
	r.loopMu.Lock()
	cancel, done := r.cancel, r.done
	r.loopMu.Unlock()
	if done == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a loop is active.
func (r *Runtime) Running() bool {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	return r.running
}

func (r *Runtime) claim(cancel context.CancelFunc) (chan struct{}, error) {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.running {
		return nil, kerrors.ErrAlreadyStarted
	}
	r.running = true
	r.cancel = cancel
	r.done = make(chan struct{})
	KELoopRunning.WithLabelValues(r.opts.KnowledgeBaseID).Set(1)
	return r.done, nil
}

func (r *Runtime) release(done chan struct{}) {
	r.loopMu.Lock()
	r.running = false
	r.cancel = nil
	r.done = nil
	r.loopMu.Unlock()
	KELoopRunning.WithLabelValues(r.opts.KnowledgeBaseID).Set(0)
	close(done)
}
