package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/FranksOps/vetter/internal/model"
	"github.com/FranksOps/vetter/internal/pipeline"
	"github.com/FranksOps/vetter/internal/report"
	"github.com/FranksOps/vetter/internal/storage"
	"github.com/spf13/cobra"
)

// Defaults used when the run inputs are not given.
const (
	defaultTopic   = "Ubiquiti"
	defaultCountry = "USA"
)

func addRequestFlags(cmd *cobra.Command, req *pipeline.Request) {
	cmd.Flags().StringVar(&req.Topic, "topic", defaultTopic, "product or brand to find suppliers for")
	cmd.Flags().StringVar(&req.Country, "country", defaultCountry, "country the suppliers serve")
	cmd.Flags().StringArrayVarP(&req.Queries, "query", "q", nil, "search query, repeatable (default derived from topic and country)")
	cmd.Flags().IntVar(&req.MaxPages, "pages", pipeline.DefaultMaxPages, "result pages fetched per query")
}

func newDiscoverCmd(a *app) *cobra.Command {
	var req pipeline.Request
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Search for supplier candidates and print them as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.env.discoverer()
			if err != nil {
				return err
			}
			args, err := json.Marshal(req)
			if err != nil {
				return err
			}
			out, err := (&pipeline.DiscoverTool{Discoverer: d}).Call(cmd.Context(), args)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	addRequestFlags(cmd, &req)
	return cmd
}

func newEnrichCmd(a *app) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Enrich candidates read as JSON and print the aggregate result",
		Long: "Reads a JSON array of candidates, or an object with a \"suppliers\" array, " +
			"from --input or standard input.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agg, err := a.env.aggregator()
			if err != nil {
				return err
			}
			data, err := readInput(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			out, err := (&pipeline.AggregateTool{Aggregator: agg}).Call(cmd.Context(), data)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "candidate file, - for standard input")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var req pipeline.Request
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover and enrich suppliers, storing the run when storage is configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.env.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			run, runErr := p.Run(cmd.Context(), req)
			if run != nil && run.Result != nil {
				out, err := run.Result.JSON()
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	addRequestFlags(cmd, &req)
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	var (
		format string
		filter storage.Filter
		failed string
		since  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.env.storage(cmd.Context())
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("report needs --storage and --storage-dsn: %w", model.ErrConfiguration)
			}
			switch failed {
			case "":
			case "true", "false":
				b := failed == "true"
				filter.Failed = &b
			default:
				return fmt.Errorf("--failed must be true or false: %w", model.ErrConfiguration)
			}
			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}

			runs, err := store.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			summary := report.GenerateSummary(runs)
			w := cmd.OutOrStdout()
			switch format {
			case "json":
				return report.WriteJSON(w, summary)
			case "text":
				return report.WriteText(w, summary)
			case "html":
				return report.WriteHTML(w, summary)
			default:
				return fmt.Errorf("unknown report format %q: %w", format, model.ErrConfiguration)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "json, text or html")
	cmd.Flags().StringVar(&filter.Topic, "topic", "", "only runs for this topic")
	cmd.Flags().StringVar(&filter.Country, "country", "", "only runs for this country")
	cmd.Flags().StringVar(&failed, "failed", "", "true for stopped runs only, false for completed runs only")
	cmd.Flags().DurationVar(&since, "since", 0, "only runs newer than this, e.g. 72h")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum runs summarized")
	return cmd
}

// newToolCmd lets an orchestrator call either stage by name with JSON
// arguments on standard input.
func newToolCmd(a *app) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "tool [name]",
		Short: "Call a stage as a JSON tool, or list the tools",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list || len(args) == 0 {
				return listTools(cmd.OutOrStdout())
			}

			var tool pipeline.Tool
			switch args[0] {
			case (&pipeline.DiscoverTool{}).Name():
				d, err := a.env.discoverer()
				if err != nil {
					return err
				}
				tool = &pipeline.DiscoverTool{Discoverer: d}
			case (&pipeline.AggregateTool{}).Name():
				agg, err := a.env.aggregator()
				if err != nil {
					return err
				}
				tool = &pipeline.AggregateTool{Aggregator: agg}
			default:
				return fmt.Errorf("unknown tool %q", args[0])
			}

			data, err := readInput(cmd.InOrStdin(), "-")
			if err != nil {
				return err
			}
			out, err := tool.Call(cmd.Context(), data)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list tool names and descriptions")
	return cmd
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func listTools(w io.Writer) error {
	var infos []toolInfo
	for _, t := range pipeline.Tools(nil, nil) {
		infos = append(infos, toolInfo{Name: t.Name(), Description: t.Description()})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(infos)
}

// readInput reads path, or r when path is "-".
func readInput(r io.Reader, path string) ([]byte, error) {
	if path == "-" || path == "" {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read standard input: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
