package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/buoy-console/internal/app"
	"github.com/yungbote/buoy-console/internal/datasets"
	"github.com/yungbote/buoy-console/internal/gateway"
	"github.com/yungbote/buoy-console/internal/platform/logger"
)

func cookie(name, value string) *http.Cookie {
	return &http.Cookie{Name: name, Value: value}
}

// withStore runs fn against a one-off store built from the global flags.
func (g *globals) withStore(fn func(*datasets.Store) error) error {
	cfg, err := g.config()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, release, err := app.NewStandaloneStore(cfg, logger.Nop(), g.credentials(cfg))
	if err != nil {
		return err
	}
	defer release()
	err = fn(store)
	if ue, ok := gateway.IsUnauthorized(err); ok {
		return fmt.Errorf("not logged in; sign in at %s and pass --session", ue.LoginURL)
	}
	return err
}

func newDatasetsCommand(g *globals) *cobra.Command {
	var pipeline string
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(func(st *datasets.Store) error {
				out := cmd.OutOrStdout()
				if pipeline != "" {
					list, err := st.DatasetsForPipeline(cmd.Context(), pipeline)
					if err != nil {
						return err
					}
					if g.asJSON {
						return writeJSON(out, list)
					}
					tw := table(out, "SLUG", "STATE", "CONFIGS", "EDITED")
					for _, d := range list {
						fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.Slug, d.State, len(d.Configs), when(d.Edited))
					}
					return tw.Flush()
				}

				list, err := st.Datasets(cmd.Context())
				if err != nil {
					return err
				}
				if g.asJSON {
					return writeJSON(out, list)
				}
				if len(list) == 0 {
					_, err := fmt.Fprintln(out, "No datasets yet.")
					return err
				}
				tw := table(out, "SLUG", "STATE", "EDITED", "CAN EDIT")
				for _, d := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", d.Slug, d.State, when(d.Edited), d.UserCanEdit)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "list the datasets of one pipeline (needs the backend API key)")
	return cmd
}

func newDatasetCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "dataset <slug>",
		Short: "Show one dataset, its pipeline and its configs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(func(st *datasets.Store) error {
				ov, err := st.Overview(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.asJSON {
					return writeJSON(out, ov)
				}
				pipeline := "-"
				if ov.Pipeline != nil {
					pipeline = ov.Pipeline.DisplayName()
				}
				fmt.Fprintf(out, "Dataset:  %s\nState:    %s\nPipeline: %s\nEdited:   %s\n\n",
					ov.Dataset.Slug, ov.Dataset.State, pipeline, when(ov.Dataset.Edited))
				if len(ov.Dataset.Configs) == 0 {
					_, err := fmt.Fprintln(out, "No configurations.")
					return err
				}
				tw := table(out, "ID", "STATE", "EDITED")
				for _, c := range ov.Dataset.Configs {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", strconv.FormatInt(c.ID, 10), c.State, when(c.Edited))
				}
				return tw.Flush()
			})
		},
	}
}

func newPipelinesCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(func(st *datasets.Store) error {
				list, err := st.Pipelines(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.asJSON {
					return writeJSON(out, list)
				}
				tw := table(out, "ID", "SLUG", "NAME", "ACTIVE")
				for _, p := range list {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", p.ID, p.Slug, p.DisplayName(), p.Active)
				}
				return tw.Flush()
			})
		},
	}
}

func table(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	return tw
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func when(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
