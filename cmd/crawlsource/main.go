// Command crawlsource runs a demo crawl over a static crawler and inspects
// partition stores.
//
// Flags can also be set through CRAWLSOURCE_* environment variables, for
// example CRAWLSOURCE_STORE=sqlite:/tmp/crawl.db, or through a YAML file passed
// with --config.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "crawlsource",
	Short: "Lease-coordinated crawling source demo",
	Long: `crawlsource drives a crawler under lease-based partition coordination.

Stores:
- memory:           in-process, lost on exit
- sqlite:<path>     SQLite database file
- nats:<url>        JetStream KV bucket on a NATS server
- nats:embedded     JetStream KV bucket on an in-process NATS server

Run several "crawlsource run" processes against the same sqlite file or NATS
server to watch leadership and work items move between them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("config")
		if path == "" {
			return nil
		}
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}

		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CRAWLSOURCE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML file with source configuration and flag values")
	flags.String("store", "memory", "partition store: memory, sqlite:<path>, nats:<url> or nats:embedded")
	flags.String("bucket", "", "JetStream KV bucket for nats stores (default crawlsource-partitions)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Bool("log-json", false, "log in JSON format")
	for _, name := range []string{"config", "store", "bucket", "log-level", "log-json"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(partitionsCmd())
}
