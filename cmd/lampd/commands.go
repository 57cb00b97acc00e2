package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/lamp-relay/internal/discovery"
	"github.com/sweeney/lamp-relay/internal/gpio"
	"github.com/sweeney/lamp-relay/internal/network"
	"github.com/sweeney/lamp-relay/internal/settings"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the wall switch position and exit",
	Long: `Reads the wall switch line once and prints its position. The daemon must
not be running, since it holds the GPIO lines.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		chip, err := gpio.OpenChip(cfg.GPIO.Chip)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer chip.Close()

		sw, err := chip.Input(cfg.GPIO.SwitchPin)
		if err != nil {
			return fmt.Errorf("init switch: %w", err)
		}
		return printSwitch(cmd.OutOrStdout(), sw)
	},
}

func printSwitch(w io.Writer, sw gpio.Input) error {
	closed, err := sw.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	fmt.Fprintf(w, "Switch: %s\n", switchString(closed))
	return nil
}

func switchString(closed bool) string {
	if closed {
		return "CLOSED"
	}
	return "OPEN"
}

var wifiCmd = &cobra.Command{
	Use:   "wifi",
	Short: "Manage the stored Wi-Fi credentials",
}

var (
	wifiSSID string
	wifiPass string
)

var wifiSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the station credentials used on the next boot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := settings.Open(cfg.Settings.Path, nil)
		if err != nil {
			return fmt.Errorf("open settings: %w", err)
		}
		defer store.Close()

		return saveWiFi(cmd.OutOrStdout(), store.Namespace(network.SettingsNamespace), wifiSSID, wifiPass)
	},
}

func saveWiFi(w io.Writer, kv settings.KV, ssid, pass string) error {
	if err := network.SaveCredentials(kv, network.Credentials{SSID: ssid, Passphrase: pass}); err != nil {
		return err
	}
	fmt.Fprintf(w, "Saved credentials for %q. They take effect on the next boot.\n", ssid)
	return nil
}

var findTimeout time.Duration

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "List lamps announced on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), findTimeout)
		defer cancel()

		lamps, err := discovery.Find(ctx)
		if err != nil {
			return err
		}
		printLamps(cmd.OutOrStdout(), lamps)
		return nil
	},
}

func printLamps(w io.Writer, lamps []discovery.Lamp) {
	if len(lamps) == 0 {
		fmt.Fprintln(w, "No lamps found.")
		return
	}
	for _, l := range lamps {
		fmt.Fprintf(w, "%-24s %-15s %s\n", l.Instance, l.IP, l.URL())
	}
}

func init() {
	wifiSetCmd.Flags().StringVar(&wifiSSID, "ssid", "", "Network name")
	wifiSetCmd.Flags().StringVar(&wifiPass, "pass", "", "Passphrase (empty for an open network)")
	wifiSetCmd.MarkFlagRequired("ssid") //nolint:errcheck
	wifiCmd.AddCommand(wifiSetCmd)

	findCmd.Flags().DurationVar(&findTimeout, "timeout", discovery.DefaultFindTimeout, "How long to browse")
}
