package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mind-engage/certsync/internal/config"
	"github.com/mind-engage/certsync/internal/logging"
)

var (
	v   = viper.New()
	cfg config.Config
	log = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "certsync",
	Short: "Sync LMS assessment scores into certificate requests",
	Long: `certsync pulls assessment results for certificate requests from Thinkific,
reduces them to practical and written scores, decides pass or fail against each
request's threshold and writes the outcome back to the certificate store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(v, v.GetString("config")); err != nil {
			return err
		}
		if log, err = logging.New(cfg.Logging); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

func main() {
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file (default config/config.yaml)")
	pf.Bool("json", false, "output JSON")
	pf.String("store", "", "certificate store: sql|supabase")
	pf.String("db-driver", "", "database driver: sqlite|postgres")
	pf.String("db-dsn", "", "database DSN")
	pf.String("log-level", "", "log level")
	_ = v.BindPFlag("config", pf.Lookup("config"))
	_ = v.BindPFlag("json", pf.Lookup("json"))
	_ = v.BindPFlag("store.kind", pf.Lookup("store"))
	_ = v.BindPFlag("database.driver", pf.Lookup("db-driver"))
	_ = v.BindPFlag("database.dsn", pf.Lookup("db-dsn"))
	_ = v.BindPFlag("logging.level", pf.Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(lmsCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(requestCmd())
}
