package client

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
	"github.com/BlueBird-project/ke-client-go/pkg/registry"
	"github.com/BlueBird-project/ke-client-go/pkg/store"
	"github.com/BlueBird-project/ke-client-go/pkg/uritemplate"
)

// Broker 404 messages meaning the knowledge base is no longer known.
const (
	ReasonUnknownKnowledgeBase = "Smart connector not found, because its ID is unknown."
	ReasonInactivity           = "This knowledge base has been unregistered due to inactivity."
)

// Loop waits.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultPollDelay      = 60 * time.Second
	GoneDelay             = 30 * time.Second
	RetryDelay            = 15 * time.Second
	ConnectionRetryDelay  = 30 * time.Second
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Options configures a Runtime.
type Options struct {
	KnowledgeBaseID string
	Endpoint        string

	// RequestTimeout bounds a regular call and seeds the reconnect backoff.
	RequestTimeout time.Duration
	// PollDelay is how long the broker may hold a GET sc/handle open.
	PollDelay time.Duration

	// HTTPClient replaces the default client. Its timeout is left as is.
	HTTPClient *http.Client
	Logger     *slog.Logger
	Journal    store.Journal
	Sleep      SleepFunc

	// OnLoopExit is called once a loop started with Start has returned on
	// its own: nil after the broker closed the knowledge base, the error
	// otherwise. It is not called when the loop was stopped or cancelled.
	OnLoopExit func(err error)

	// ForgottenReasons are the 404 messages that trigger a reconnect.
	// Defaults to ReasonUnknownKnowledgeBase and ReasonInactivity.
	ForgottenReasons []string
}

type interactionRef struct {
	Name string `uri:"name"`
	URI  string
}

var interactionIDTemplate = uritemplate.MustNew[interactionRef]("interaction/${name}")

// Runtime registers a knowledge base and its interactions with the broker,
// performs ASK and POST calls and serves REACT and ANSWER requests.
type Runtime struct {
	opts     Options
	client   *Client
	registry *registry.Registry
	logger   *slog.Logger
	journal  store.Journal
	sleep    SleepFunc
	reasons  map[string]struct{}

	reconnects singleflight.Group

	// regMu serializes registration; stateMu guards the flags below.
	regMu        sync.Mutex
	stateMu      sync.RWMutex
	kbRegistered bool
	kiRegistered bool

	loopMu  sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewRuntime creates a runtime for the interactions declared on reg.
func NewRuntime(opts Options, reg *registry.Registry) (*Runtime, error) {
	if opts.KnowledgeBaseID == "" {
		return nil, kerrors.Config("new runtime", nil, "knowledge base id is empty")
	}
	if reg == nil {
		return nil, kerrors.Config("new runtime", nil, "registry is nil")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.PollDelay <= 0 {
		opts.PollDelay = DefaultPollDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	if len(opts.ForgottenReasons) == 0 {
		opts.ForgottenReasons = []string{ReasonUnknownKnowledgeBase, ReasonInactivity}
	}

	c := NewClient(opts.Endpoint, opts.KnowledgeBaseID, opts.RequestTimeout+opts.PollDelay)
	if opts.HTTPClient != nil {
		c.WithHTTPClient(opts.HTTPClient)
	}

	reasons := make(map[string]struct{}, len(opts.ForgottenReasons))
	for _, r := range opts.ForgottenReasons {
		reasons[r] = struct{}{}
	}

	return &Runtime{
		opts:     opts,
		client:   c,
		registry: reg,
		logger:   opts.Logger.With("kb_id", opts.KnowledgeBaseID),
		journal:  opts.Journal,
		sleep:    opts.Sleep,
		reasons:  reasons,
	}, nil
}

// Registry returns the interactions this runtime serves.
func (r *Runtime) Registry() *registry.Registry { return r.registry }

// Client returns the broker transport.
func (r *Runtime) Client() *Client { return r.client }

// KnowledgeBaseID returns the id of the knowledge base.
func (r *Runtime) KnowledgeBaseID() string { return r.opts.KnowledgeBaseID }

// Connected reports whether the knowledge base and all its interactions are
// registered with the broker.
func (r *Runtime) Connected() bool {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.kbRegistered && r.kiRegistered
}

func (r *Runtime) setRegistered(kb, ki bool) {
	r.stateMu.Lock()
	r.kbRegistered = kb
	r.kiRegistered = ki
	r.stateMu.Unlock()
	KEConnected.WithLabelValues(r.opts.KnowledgeBaseID).Set(boolGauge(kb && ki))
}

// forgotten reports a 404 whose message says the broker lost this
// knowledge base.
func (r *Runtime) forgotten(resp *Response) bool {
	if resp.StatusCode != http.StatusNotFound {
		return false
	}
	_, ok := r.reasons[resp.Message()]
	return ok
}

// describeID names an interaction id for logs, using the name embedded in
// broker-issued ids when the id is not a local one.
func (r *Runtime) describeID(id string) string {
	if ki, ok := r.registry.ByID(id); ok {
		return ki.Name
	}
	ref, err := interactionIDTemplate.Parse(id, r.opts.KnowledgeBaseID)
	if err != nil {
		return id
	}
	return ref.Name
}

// record appends an event to the journal; failures are logged only.
func (r *Runtime) record(ctx context.Context, typ store.EventType, ki *registry.Interaction, correlation string, payload any) {
	if r.journal == nil {
		return
	}
	dims := store.EventDimensions{KnowledgeBaseID: r.opts.KnowledgeBaseID}
	if ki != nil {
		dims.InteractionName = ki.Name
		dims.InteractionID = ki.ID()
	}
	evt, err := store.NewEvent(typ, dims, payload)
	if err != nil {
		r.logger.Warn("failed to build journal event", "event_type", typ, "error", err)
		return
	}
	evt.Correlation.CorrelationID = correlation
	if err := r.journal.AppendEvent(ctx, evt); err != nil {
		r.logger.Warn("failed to append journal event", "event_type", typ, "error", err)
	}
}

func (r *Runtime) count(op string, resp *Response, err error) {
	status := "error"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	KERequestsTotal.WithLabelValues(r.opts.KnowledgeBaseID, op, status).Inc()
}
