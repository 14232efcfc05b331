package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rollcall/attendance/internal/watcher"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "maint",
	Short:   "Show or change the watcher config documents",
}

var configWatcherCmd = &cobra.Command{
	Use:   "watcher",
	Short: "File watcher settings",
}

var configRemoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Remote spreadsheet settings",
}

var configWatcherShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the file watcher config",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := watcher.NewConfigStore(appConfig.DataDir).Watcher()
		exitOnErr(err)
		printConfig(cfg)
	},
}

var configWatcherSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change file watcher settings; unspecified fields keep their values",
	Example: `  rollcall config watcher set --enabled --auto-import --interval 60
  rollcall config watcher set --dir /srv/excel`,
	Run: func(cmd *cobra.Command, args []string) {
		var patch watcher.WatcherPatch
		flags := cmd.Flags()
		if flags.Changed("enabled") {
			v, _ := flags.GetBool("enabled")
			patch.Enabled = &v
		}
		if flags.Changed("auto-import") {
			v, _ := flags.GetBool("auto-import")
			patch.AutoImport = &v
		}
		if flags.Changed("interval") {
			v, _ := flags.GetInt("interval")
			patch.WatchInterval = &v
		}
		if flags.Changed("dir") {
			v, _ := flags.GetString("dir")
			patch.WatchDirectory = &v
		}

		cfg, err := watcher.NewConfigStore(appConfig.DataDir).UpdateWatcher(patch)
		exitOnErr(err)
		printConfig(cfg)
	},
}

var configRemoteShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the remote config with the private key masked",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := watcher.NewConfigStore(appConfig.DataDir).Remote()
		exitOnErr(err)
		printConfig(cfg.Masked())
	},
}

var configRemoteSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change remote settings; unspecified fields keep their values",
	Example: `  rollcall config remote set --email sync@proj.iam.gserviceaccount.com \
      --private-key-file key.pem --resource-id 1AbC... --enabled --auto-import`,
	Run: func(cmd *cobra.Command, args []string) {
		var patch watcher.RemotePatch
		flags := cmd.Flags()
		if flags.Changed("email") {
			v, _ := flags.GetString("email")
			patch.ServiceAccountEmail = &v
		}
		if flags.Changed("private-key") {
			v, _ := flags.GetString("private-key")
			patch.PrivateKey = &v
		}
		if flags.Changed("private-key-file") {
			path, _ := flags.GetString("private-key-file")
			// #nosec G304 - operator-supplied key file
			data, err := os.ReadFile(path)
			exitOnErr(err)
			v := strings.TrimSpace(string(data))
			patch.PrivateKey = &v
		}
		if flags.Changed("resource-id") {
			v, _ := flags.GetString("resource-id")
			patch.ResourceID = &v
		}
		if flags.Changed("enabled") {
			v, _ := flags.GetBool("enabled")
			patch.Enabled = &v
		}
		if flags.Changed("auto-import") {
			v, _ := flags.GetBool("auto-import")
			patch.AutoImport = &v
		}
		if flags.Changed("interval") {
			v, _ := flags.GetInt("interval")
			patch.WatchInterval = &v
		}

		cfg, err := watcher.NewConfigStore(appConfig.DataDir).UpdateRemote(patch)
		exitOnErr(err)
		printConfig(cfg)
	},
}

var configRemoteTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check that the remote spreadsheet is reachable",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		src := watcher.NewSheetsSource(watcher.NewConfigStore(appConfig.DataDir), nil, logger)
		title, err := src.TestConnection(ctx)
		if err != nil {
			fmt.Println(failStyle.Render("✗ " + err.Error()))
			os.Exit(1)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("✓ Connected to %q", title)))
	},
}

func init() {
	configWatcherSetCmd.Flags().Bool("enabled", false, "Enable the file watcher")
	configWatcherSetCmd.Flags().Bool("auto-import", false, "Import on every tick")
	configWatcherSetCmd.Flags().Int("interval", watcher.DefaultWatchInterval, "Poll interval in seconds (min 10)")
	configWatcherSetCmd.Flags().String("dir", "", "Directory to watch for spreadsheets")

	configRemoteSetCmd.Flags().String("email", "", "Service account email")
	configRemoteSetCmd.Flags().String("private-key", "", "Service account private key (PEM, \\n escapes allowed)")
	configRemoteSetCmd.Flags().String("private-key-file", "", "Read the private key from a file")
	configRemoteSetCmd.Flags().String("resource-id", "", "Spreadsheet id")
	configRemoteSetCmd.Flags().Bool("enabled", false, "Enable the remote watcher")
	configRemoteSetCmd.Flags().Bool("auto-import", false, "Import on every tick")
	configRemoteSetCmd.Flags().Int("interval", 60, "Poll interval in seconds (min 10)")
	configRemoteSetCmd.MarkFlagsMutuallyExclusive("private-key", "private-key-file")

	configWatcherCmd.AddCommand(configWatcherShowCmd, configWatcherSetCmd)
	configRemoteCmd.AddCommand(configRemoteShowCmd, configRemoteSetCmd, configRemoteTestCmd)
	configCmd.AddCommand(configWatcherCmd, configRemoteCmd)
	rootCmd.AddCommand(configCmd)
}

func printConfig(v any) {
	if jsonOutput {
		outputJSON(v)
		return
	}
	out, err := yaml.Marshal(v)
	exitOnErr(err)
	fmt.Print(string(out))
}

func exitOnErr(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
