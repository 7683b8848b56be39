package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/BlueBird-project/ke-client-go/pkg/client"
	"github.com/BlueBird-project/ke-client-go/pkg/config"
	"github.com/BlueBird-project/ke-client-go/pkg/registry"
	"github.com/BlueBird-project/ke-client-go/pkg/store"
	"github.com/BlueBird-project/ke-client-go/pkg/store/redis"
)

// declaration is a --declare value: "{role}:{pattern}".
type declaration struct {
	kind    registry.Kind
	pattern string
}

func parseDeclaration(s string) (declaration, error) {
	role, name, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return declaration{}, fmt.Errorf("invalid declaration %q, want role:pattern", s)
	}
	kind, ok := registry.ParseKind(strings.ToLower(role))
	if !ok {
		return declaration{}, fmt.Errorf("invalid declaration %q, unknown role %q", s, role)
	}
	return declaration{kind: kind, pattern: name}, nil
}

func declare(reg *registry.Registry, decls []declaration) error {
	for _, d := range decls {
		var err error
		switch d.kind {
		case registry.KindAsk:
			_, err = reg.Ask(d.pattern)
		case registry.KindPost:
			_, err = reg.Post(d.pattern)
		case registry.KindReact:
			_, err = reg.React(d.pattern, nil)
		case registry.KindAnswer:
			_, err = reg.Answer(d.pattern, nil)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// backends holds the optional journal and lease store picked by settings.
type backends struct {
	journal store.Journal
	leases  store.LeaseStore
	sqlite  *store.Store
	closers []io.Closer
}

func (b *backends) Close() {
	for _, c := range b.closers {
		_ = c.Close()
	}
}

// openBackends prefers Redis when an address is configured, then a SQLite
// file. Without either the client runs without journal or election.
func openBackends(ctx context.Context, s *config.Settings) (*backends, error) {
	b := &backends{}
	switch {
	case s.RedisAddr != "":
		rdb := goredis.NewClient(&goredis.Options{Addr: s.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", s.RedisAddr, err)
		}
		b.journal = redis.NewRedisJournal(rdb, s.KnowledgeBaseID, 0)
		b.leases = redis.NewRedisLeaseStore(rdb)
		b.closers = append(b.closers, rdb)
	case s.JournalPath != "":
		st, err := store.NewStore(s.JournalPath)
		if err != nil {
			return nil, err
		}
		b.journal, b.leases, b.sqlite = st, st, st
		b.closers = append(b.closers, st)
	}
	return b, nil
}

// app is everything a running client needs.
type app struct {
	settings *config.Settings
	registry *registry.Registry
	runtime  *client.Runtime
	backends *backends
	// loopExit receives the result of a handle loop that ended by itself.
	loopExit chan error
}

func loadSettings() (*config.Settings, error) {
	s, err := config.Load(flagConfig, flagEnvFile)
	if err != nil {
		return nil, err
	}
	if err := s.RequireKnowledgeBaseID(); err != nil {
		return nil, err
	}
	return s, nil
}

func newApp(ctx context.Context, logger *slog.Logger, decls []declaration) (*app, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	catalog, err := config.LoadCatalog(s)
	if err != nil {
		return nil, err
	}
	reg := registry.New(catalog, registry.WithLogger(logger))
	if err := declare(reg, decls); err != nil {
		return nil, err
	}

	b, err := openBackends(ctx, s)
	if err != nil {
		return nil, err
	}

	loopExit := make(chan error, 1)
	rt, err := client.NewRuntime(client.Options{
		KnowledgeBaseID: s.KnowledgeBaseID,
		Endpoint:        s.RestEndpoint,
		RequestTimeout:  s.RequestTimeout,
		PollDelay:       s.PollDelay,
		HTTPClient:      httpClient(s),
		Logger:          logger,
		Journal:         b.journal,
		OnLoopExit: func(err error) {
			select {
			case loopExit <- err:
			default:
			}
		},
	}, reg)
	if err != nil {
		b.Close()
		return nil, err
	}
	return &app{settings: s, registry: reg, runtime: rt, backends: b, loopExit: loopExit}, nil
}

func httpClient(s *config.Settings) *http.Client {
	timeout := s.RequestTimeout + s.PollDelay
	if s.VerifyCert {
		return &http.Client{Timeout: timeout}
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return &http.Client{Timeout: timeout, Transport: tr}
}
