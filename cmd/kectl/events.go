package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

var (
	flagLimit     int
	flagTypes     []string
	flagSince     time.Duration
	flagOlderThan time.Duration
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print journal events from the configured backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		b, err := openBackends(cmd.Context(), s)
		if err != nil {
			return err
		}
		defer b.Close()
		if b.journal == nil {
			return fmt.Errorf("no journal configured, set KE_JOURNAL_PATH or KE_REDIS_ADDR")
		}

		var events []*store.Event
		if b.sqlite != nil {
			filter := store.EventFilter{KnowledgeBaseID: s.KnowledgeBaseID, Limit: flagLimit}
			for _, t := range flagTypes {
				filter.EventTypes = append(filter.EventTypes, store.EventType(t))
			}
			if flagSince > 0 {
				filter.From = time.Now().Add(-flagSince)
			}
			events, err = b.sqlite.QueryEvents(cmd.Context(), filter)
		} else {
			events, err = b.journal.ReadRecentEvents(cmd.Context(), flagLimit)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd, events)
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete SQLite journal events older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		b, err := openBackends(cmd.Context(), s)
		if err != nil {
			return err
		}
		defer b.Close()
		if b.sqlite == nil {
			return fmt.Errorf("prune needs a SQLite journal, set KE_JOURNAL_PATH")
		}
		n, err := b.sqlite.PruneEvents(cmd.Context(), time.Now().Add(-flagOlderThan))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d events\n", n)
		return nil
	},
}

func init() {
	eventsCmd.Flags().IntVarP(&flagLimit, "limit", "n", 50, "maximum number of events")
	eventsCmd.Flags().StringSliceVarP(&flagTypes, "type", "t", nil, "only these event types (SQLite only)")
	eventsCmd.Flags().DurationVar(&flagSince, "since", 0, "only events newer than this (SQLite only)")
	pruneCmd.Flags().DurationVar(&flagOlderThan, "older-than", 30*24*time.Hour, "retention window")
}
