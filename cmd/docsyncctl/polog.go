package main

import (
	"fmt"

	"github.com/docsync/backend/internal/application/pipeline"
	"github.com/docsync/backend/internal/infrastructure/dropbox"
	"github.com/docsync/backend/internal/infrastructure/monday"
	"github.com/docsync/backend/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
)

func pologCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "polog <dropbox-path>",
		Short: "Import a PO log export and update the board",
		Long: `Downloads a PO log export from Dropbox, totals the subitems of every
ready-to-pay PO and marks them RTP or PO Log Mismatch on the board.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := e.database()
			if err != nil {
				return err
			}
			files, err := dropbox.NewClient(e.cfg.Dropbox, e.log)
			if err != nil {
				return err
			}
			if err := files.Connect(ctx); err != nil {
				return err
			}
			defer files.Stop()
			board, err := monday.NewClient(e.cfg.Monday, e.log)
			if err != nil {
				return err
			}

			importer := pipeline.NewPOLogImporter(files, board, persistence.NewGormPOLogRepository(db), e.log)
			importer.SetAuditLog(persistence.NewGormAuditLogRepository(db))
			run, err := importer.Import(ctx, args[0])
			if run != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "project %s: %s, %d entries, %d matched\n",
					run.ProjectNumber, run.Status, run.EntryCount, run.MatchedCount)
			}
			return err
		},
	}
}
