package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/speedrun-hq/shield/pkg/config"
	"github.com/speedrun-hq/shield/pkg/health"
	"github.com/speedrun-hq/shield/pkg/logger"
	"github.com/speedrun-hq/shield/pkg/signer"
	"github.com/speedrun-hq/shield/pkg/trader"
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	flags := sessionFlags{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Open a local session and serve its status and metrics until interrupted",
		Long: `Open a local session and serve /health, /ready, /status and /metrics on
$METRICS_PORT. The reported state is local bookkeeping only, not a channel
balance. The session is ended on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			s, err := buildSigner(cfg, log)
			if err != nil {
				return err
			}

			// Set up context with cancellation on SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runStatus(ctx, cfg, flags, s, log)
		},
	}

	cmd.Flags().StringVar(&flags.endpoint, "endpoint", "", "coordination endpoint (default $CLEARNODE_URL)")
	cmd.Flags().StringVar(&flags.sessionID, "session", "", "session id (default $SESSION_ID or a random UUID)")
	return cmd
}

func runStatus(ctx context.Context, cfg *config.Config, flags sessionFlags, s signer.Signer, log logger.Logger) error {
	flags.apply(cfg)

	tr, err := trader.New(s, trader.WithLogger(log), trader.WithNativeAsset(cfg.NativeAsset))
	if err != nil {
		return err
	}
	if err := tr.Initialize(cfg.ClearnodeURL, cfg.SessionID); err != nil {
		return err
	}

	serveErr := newStatusServer(cfg, tr, log).Start(ctx)

	snapshot, err := tr.EndLocalSession()
	if err != nil {
		return err
	}
	log.InfoWithSession(snapshot.SessionID, "Session ended locally at nonce %d", snapshot.LastNonce)
	return serveErr
}

// newStatusServer serves the session without a broker circuit, nothing submits from here
func newStatusServer(cfg *config.Config, source health.SessionSource, log logger.Logger) *health.Server {
	return health.NewServer(cfg.MetricsPort, source, nil, cfg.MetricsAPIKey, log)
}
