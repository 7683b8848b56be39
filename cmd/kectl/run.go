package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BlueBird-project/ke-client-go/pkg/api"
	"github.com/BlueBird-project/ke-client-go/pkg/client"
	"github.com/BlueBird-project/ke-client-go/pkg/election"
)

const leaseTTL = 15 * time.Second

var (
	flagDeclare []string
	flagNoAdmin bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Register the knowledge base and serve its interactions",
	Long: `Register the knowledge base with the broker, serve REACT and ANSWER
requests in the handle loop and expose the admin API.

Interactions are declared with --declare role:pattern, for example
--declare ask:measurement --declare answer:measurement. REACT and ANSWER
interactions declared this way reply with one empty binding.

With a journal backend configured, replicas sharing a knowledge base id
elect one leader to own registration and the handle loop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, slog.Default())
	},
}

func init() {
	runCmd.Flags().StringArrayVarP(&flagDeclare, "declare", "d", nil, "declare an interaction as role:pattern (repeatable)")
	runCmd.Flags().BoolVar(&flagNoAdmin, "no-admin", false, "do not serve the admin API")
}

func parseDeclarations(values []string) ([]declaration, error) {
	decls := make([]declaration, 0, len(values))
	for _, v := range values {
		d, err := parseDeclaration(v)
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	return decls, nil
}

// registeringLoop registers before the handle loop starts, so that only the
// current leader reconciles broker state. Registration always starts over:
// a leader elected in between replaced every interaction id.
type registeringLoop struct {
	rt *client.Runtime
}

func (l registeringLoop) Start(ctx context.Context) error {
	l.rt.Invalidate()
	if err := l.rt.Register(ctx); err != nil {
		return err
	}
	return l.rt.Start(ctx)
}

func (l registeringLoop) Stop()                   { l.rt.Stop() }
func (l registeringLoop) KnowledgeBaseID() string { return l.rt.KnowledgeBaseID() }

func run(ctx context.Context, logger *slog.Logger) error {
	decls, err := parseDeclarations(flagDeclare)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, logger, decls)
	if err != nil {
		return err
	}
	defer a.backends.Close()

	logger.Info("system started", "component", "kectl", "kb_id", a.settings.KnowledgeBaseID,
		"endpoint", a.settings.RestEndpoint, "interactions", len(a.registry.Interactions()))

	loop := registeringLoop{rt: a.runtime}

	if a.settings.ArchiveDir != "" {
		w, err := newArchiver(a.settings, a.backends, logger)
		if err != nil {
			return err
		}
		go w.Run(ctx)
	}

	var srv *api.Server
	if !flagNoAdmin {
		srv = api.NewServer(a.runtime, a.backends.journal, a.settings.AdminAddr, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("admin server failed", "error", err)
			}
		}()
	}

	var em *election.ElectionManager
	if a.backends.leases != nil {
		promote, demote := election.Gate(ctx, loop, a.backends.journal, logger)
		em = election.NewElectionManager(a.backends.leases, election.NewHolderID(),
			election.LeaseName(a.settings.KnowledgeBaseID), leaseTTL, promote, demote).WithLogger(logger)
		if srv != nil {
			srv.SetElectionManager(em)
		}
		em.Start(ctx)
	} else if err := loop.Start(ctx); err != nil {
		return err
	}

	var loopErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case loopErr = <-a.loopExit:
		if loopErr != nil {
			logger.Error("handle loop ended, shutting down", "error", loopErr)
		} else {
			logger.Info("handle loop ended, shutting down")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if em != nil {
		em.Stop(shutdownCtx)
	}
	a.runtime.Stop()
	if srv != nil {
		if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			logger.Error("failed to stop admin server", "error", err)
		}
	}
	logger.Info("shutdown complete")
	return loopErr
}
