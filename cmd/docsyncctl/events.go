package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/docsync/backend/internal/application/pipeline"
	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func eventsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and requeue file events",
	}
	cmd.AddCommand(eventsListCmd(e), eventsRetryCmd(e))
	return cmd
}

func (e *env) eventAdmin() (*pipeline.EventAdmin, error) {
	db, err := e.database()
	if err != nil {
		return nil, err
	}
	return pipeline.NewEventAdmin(persistence.NewGormFileEventRepository(db), e.log), nil
}

func eventsListCmd(e *env) *cobra.Command {
	var (
		status   string
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List file events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, err := e.eventAdmin()
			if err != nil {
				return err
			}
			res, err := admin.List(cmd.Context(), fileevent.Status(status), page, pageSize)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPROJECT\tPO\tFILE\tCREATED")
			for _, ev := range res.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					ev.ID, ev.EventType, ev.Status, ev.ProjectID, ev.PONumber, ev.FileName,
					ev.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d events\n", res.Page, res.TotalPages, res.Total)
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (pending, processing, processed, failed, skipped, duplicate)")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number")
	cmd.Flags().IntVarP(&pageSize, "page-size", "n", 20, "Events per page (max 100)")
	return cmd
}

func eventsRetryCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Put a failed file event back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid event id %q: %w", args[0], err)
			}
			admin, err := e.eventAdmin()
			if err != nil {
				return err
			}
			ev, err := admin.Retry(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is %s\n", ev.ID, ev.FileName, ev.Status)
			return nil
		},
	}
}
