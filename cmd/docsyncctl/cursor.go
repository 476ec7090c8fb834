package main

import (
	"errors"
	"fmt"

	"github.com/docsync/backend/internal/infrastructure/cache"
	"github.com/docsync/backend/internal/infrastructure/storage"
	"github.com/spf13/cobra"
)

func cursorCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Manage Dropbox change-feed cursors",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reset <member-id>",
		Short: "Forget the cursor of a team member",
		Long: `Removes the stored cursor. The next webhook re-initialises it from the
current state of the namespace without recording past changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			member := args[0]
			switch e.cfg.Cursor.Backend {
			case "redis":
				if !e.cfg.Redis.Enabled {
					return errors.New("cursor backend redis requires redis.enabled")
				}
				client, err := cache.NewRedisClient(ctx, e.cfg.Redis)
				if err != nil {
					return err
				}
				defer client.Close()
				if err := cache.NewRedisCursorStore(client).Delete(ctx, member); err != nil {
					return err
				}
			default:
				store, err := storage.NewFileCursorStore(e.cfg.Cursor.Directory)
				if err != nil {
					return err
				}
				if err := store.Delete(ctx, member); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cursor for %s reset\n", member)
			return nil
		},
	})
	return cmd
}
