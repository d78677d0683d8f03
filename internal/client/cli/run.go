package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/relay"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/store"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/sync"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/transport"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/logging"
)

// NewRunCommand creates the command that runs the sync engine until
// interrupted.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Log in and run the sync engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), opts)
		},
	}
}

func newLogger(opts *RootOptions) logging.Logger {
	var w io.Writer = os.Stderr
	handlerOpts := &slog.HandlerOptions{}
	if opts.Verbose {
		handlerOpts.Level = slog.LevelDebug
	}
	return logging.NewSlogLogger(slog.New(slog.NewJSONHandler(w, handlerOpts)))
}

// relayURL derives the websocket endpoint from the API base URL.
func relayURL(serverURL string) string {
	ws := strings.Replace(serverURL, "https://", "wss://", 1)
	ws = strings.Replace(ws, "http://", "ws://", 1)
	return strings.TrimSuffix(ws, "/") + "/api/sync/events"
}

func runAgent(ctx context.Context, opts *RootOptions) error {
	cfg := loadConfig()
	logger := newLogger(opts)

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		logger.Warn(ctx, "no device id configured, generated an ephemeral one",
			"deviceId", cfg.DeviceID)
	}

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

	sc := sync.Context{
		TenantID: session.TenantID,
		DeviceID: cfg.DeviceID,
		UserID:   session.UserID,
	}
	logger.Info(ctx, "logged in", "tenant", sc.TenantID, "device", sc.DeviceID)

	var events sync.EventSource
	if cfg.RelayEnabled {
		events = relay.NewListener(relayURL(cfg.ServerURL), sc.TenantID, client.AccessToken, logger)
	}

	engine := sync.NewEngine(sc, cfg, repos, client, events, logger)
	if err := engine.Start(ctx); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case <-sigs:
	case <-ctx.Done():
	}

	logger.Info(ctx, "shutting down")
	return engine.Stop(context.Background())
}
