package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BlueBird-project/ke-client-go/pkg/archive"
	"github.com/BlueBird-project/ke-client-go/pkg/blob"
	"github.com/BlueBird-project/ke-client-go/pkg/config"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Move SQLite journal events older than the retention window into the archive directory",
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

		w, err := newArchiver(s, b, slog.Default())
		if err != nil {
			return err
		}
		keys, err := w.Drain(cmd.Context())
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

func newArchiver(s *config.Settings, b *backends, logger *slog.Logger) (*archive.Worker, error) {
	if b.sqlite == nil {
		return nil, fmt.Errorf("archiving needs a SQLite journal, set KE_JOURNAL_PATH")
	}
	if s.ArchiveDir == "" {
		return nil, fmt.Errorf("no archive directory, set KE_ARCHIVE_DIR")
	}
	return archive.NewWorker(b.sqlite, blob.NewLocalBlobStore(s.ArchiveDir),
		archive.Config{Retention: s.ArchiveRetention}, logger), nil
}
