package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/store"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/transport"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// NewStatusCommand creates the command that prints queue and checkpoint
// state for the logged-in tenant.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depth, checkpoint and abandoned mutations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.Context(), cmd)
		},
	}
}

func showStatus(ctx context.Context, cmd *cobra.Command) error {
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

	counts, err := repos.Queue.CountByStatus(ctx, session.TenantID)
	if err != nil {
		return err
	}

	cp, err := repos.Checkpoints.Get(ctx, session.TenantID, cfg.DeviceID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tenant:       %s\n", session.TenantID)
	fmt.Fprintf(out, "device:       %s\n", cfg.DeviceID)
	fmt.Fprintf(out, "checkpoint:   seq %d (synced %s)\n", cp.LastSeq, cp.LastSyncedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "pending:      %d\n", counts[model.StatusPending])
	fmt.Fprintf(out, "sending:      %d\n", counts[model.StatusSending])
	fmt.Fprintf(out, "acknowledged: %d\n", counts[model.StatusAcknowledged])
	fmt.Fprintf(out, "rejected:     %d\n", counts[model.StatusRejected])
	fmt.Fprintf(out, "abandoned:    %d\n", counts[model.StatusAbandoned])

	abandoned, err := repos.Queue.ListByStatus(ctx, session.TenantID, model.StatusAbandoned)
	if err != nil {
		return err
	}
	for _, m := range abandoned {
		fmt.Fprintf(out, "  abandoned %s %s/%s: %s\n", m.ID, m.EntityType, m.EntityID, m.LastError)
	}

	return nil
}
