// Command vetter discovers supplier websites for a topic and enriches each
// one with domain age, review reputation and firmographic data.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/FranksOps/vetter/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCmd()
	err := root.ExecuteContext(ctx)
	if a.env != nil {
		err = errors.Join(err, a.env.Close(context.WithoutCancel(ctx)))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	env *env
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: viper.New()}
	var cfgFile string

	root := &cobra.Command{
		Use:           "vetter",
		Short:         "Find and vet suppliers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := readConfigFile(a.v, cfgFile); err != nil {
				return err
			}
			cfg, err := config.Load(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.env, err = newEnv(cfg)
			return err
		},
	}

	config.SetDefaults(a.v)
	f := root.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default ./vetter.yaml when present)")
	f.Duration("timeout", 0, "timeout for every outbound call (default 30s)")
	f.Duration("pacing", 0, "minimum spacing between calls to one backend (default 1s)")
	f.Int("concurrency", 0, "candidates enriched at once (default 1)")
	f.String("scrape-backend", "", "company page backend: scrapfly or direct (default scrapfly)")
	f.String("proxy-file", "", "proxy list for the direct backend")
	f.String("proxy-country", "", "proxy country for the direct backend (default US)")
	f.String("fingerprint", "", "TLS fingerprint for the direct backend (default chrome)")
	f.Bool("respect-robots", false, "honour robots.txt in the direct backend")
	f.Bool("require-key-in-firmographic-link", false, "only accept company page links containing the business key")
	f.String("storage", "", "run storage: none, sqlite, postgres, json or csv")
	f.String("storage-dsn", "", "storage file path or connection string")
	f.Int("metrics-port", 0, "serve Prometheus metrics on this port")
	f.String("log-level", "", "debug, info, warn or error (default info)")
	f.String("log-format", "", "text or json (default text)")
	f.String("log-file", "", "also append logs to this file (default vetter.log)")

	root.AddCommand(
		newDiscoverCmd(a),
		newEnrichCmd(a),
		newRunCmd(a),
		newReportCmd(a),
		newToolCmd(a),
	)
	return root, a
}

// readConfigFile loads path, or ./vetter.yaml when path is empty and the file
// exists.
func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vetter")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
	}
	return nil
}
