package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/buoy-console/internal/app"
	"github.com/yungbote/buoy-console/internal/platform/shutdown"
)

func newServeCommand(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the console HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			log, err := g.logger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			ctx, stop := shutdown.NotifyContext(cmd.Context())
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				log.Sync()
				return err
			}
			defer a.Close()
			if err := a.Start(ctx); err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
