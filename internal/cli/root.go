// Package cli is the console's command-line front end: the HTTP server and a
// few read-only views over the same query layer.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/buoy-console/internal/config"
	"github.com/yungbote/buoy-console/internal/gateway"
	"github.com/yungbote/buoy-console/internal/platform/logger"
)

// Loader produces the configuration. Tests swap it for a fixed config.
type Loader func() (*config.Config, error)

type globals struct {
	load      Loader
	backend   string
	sessionID string
	csrf      string
	asJSON    bool
}

func NewRootCommand(load Loader) *cobra.Command {
	if load == nil {
		load = config.Load
	}
	g := &globals{load: load}
	root := &cobra.Command{
		Use:           "console",
		Short:         "Dataset console for the ingestion backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.backend, "backend", "", "backend base URL (overrides config)")
	pf.StringVar(&g.sessionID, "session", os.Getenv("CONSOLE_SESSIONID"), "backend session cookie value")
	pf.StringVar(&g.csrf, "csrf", os.Getenv("CONSOLE_CSRFTOKEN"), "backend CSRF token")
	pf.BoolVar(&g.asJSON, "json", false, "print JSON instead of tables")

	root.AddCommand(newServeCommand(g))
	root.AddCommand(newDatasetsCommand(g))
	root.AddCommand(newDatasetCommand(g))
	root.AddCommand(newPipelinesCommand(g))
	return root
}

func (g *globals) config() (*config.Config, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	if g.backend != "" {
		cfg.Backend.BaseURL = g.backend
	}
	return cfg, nil
}

func (g *globals) logger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(cfg.Env)
}

func (g *globals) credentials(cfg *config.Config) gateway.Credentials {
	var creds gateway.Credentials
	if g.sessionID != "" {
		creds.Cookies = append(creds.Cookies, cookie(cfg.Backend.SessionCookie, g.sessionID))
	}
	if g.csrf != "" {
		creds.Cookies = append(creds.Cookies, cookie(cfg.Backend.CSRFCookie, g.csrf))
		creds.CSRFToken = g.csrf
	}
	return creds
}
