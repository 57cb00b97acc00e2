// Command lampd drives a mains lamp relay from a wall switch, a web page and
// an MQTT topic, keeping all three in agreement.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sweeney/lamp-relay/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	logLevel   string
	httpAddr   string
)

var rootCmd = &cobra.Command{
	Use:   "lampd",
	Short: "Lamp relay daemon",
	Long: `lampd switches a lamp relay from a momentary wall switch, a local web
page and an MQTT topic. It joins the configured Wi-Fi network and falls back
to its own access point when the network cannot be reached, so the page stays
reachable for setup.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runDaemon,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lampd %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	rootCmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address; overrides the config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(wifiCmd)
	rootCmd.AddCommand(findCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
