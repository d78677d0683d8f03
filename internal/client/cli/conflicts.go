package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/store"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/transport"
)

// NewConflictsCommand creates the command that lists the conflict audit log.
func NewConflictsCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List recorded sync conflicts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConflicts(cmd.Context(), cmd, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")

	return cmd
}

func showConflicts(ctx context.Context, cmd *cobra.Command, limit int) error {
	cfg := loadConfig()

	repos, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer repos.Close()

	client := transport.NewHTTPClient(cfg.ServerURL, cfg.RequestTimeout)
	client.SetDeviceID(cfg.DeviceID)
	session, err := client.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	entries, err := repos.Conflicts.ListByTenant(ctx, session.TenantID, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "no conflicts recorded")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %-11s %s/%s  local v%d vs server v%d  by %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Resolution,
			e.EntityType, e.EntityID, e.LocalVersion, e.ServerVersion, e.Actor)
	}

	return nil
}
