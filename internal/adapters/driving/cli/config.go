package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Aliases: []string{"settings"},
	Short:   "Manage application settings",
	Long: `View and change the settings stored in <root>/.flcm/config.toml.

Changes take effect on the next command.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print the effective value of a setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List every setting key",
	Args:  cobra.NoArgs,
	RunE:  runConfigKeys,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if err := requireSettings(); err != nil {
		return err
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println(ui.Title.Render("Current Settings"))
	cmd.Println()

	cmd.Println("[Storage]")
	cmd.Printf("  Backups: %s (keep %d)\n", onOff(settings.Storage.BackupEnabled), settings.Storage.MaxBackups)
	cmd.Printf("  Index backend: %s\n", settings.Storage.IndexBackend)
	cmd.Printf("  Read cache: %d files\n", settings.Storage.ReadCacheSize)
	cmd.Println()

	cmd.Println("[Pipeline]")
	cmd.Printf("  Validate: %s\n", onOff(settings.Pipeline.Validate))
	cmd.Printf("  Persist: %s\n", onOff(settings.Pipeline.Persist))
	cmd.Printf("  Best-effort persistence: %s\n", onOff(settings.Pipeline.BestEffort))
	cmd.Printf("  Retries: %d (base delay %s)\n", settings.Pipeline.MaxRetries, settings.Pipeline.RetryDelay.Round(time.Millisecond))
	cmd.Printf("  Cancel policy: %s\n", settings.Pipeline.CancelPolicy)
	cmd.Println()

	cmd.Println("[Watch]")
	cmd.Printf("  Reindex rate: %g/s\n", settings.Watch.ReindexPerSecond)
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("%s %v\n", ui.Warning.Render("Warning:"), err)
		cmd.Println("Run 'flcm config set <key> <value>' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if err := requireSettings(); err != nil {
		return err
	}

	value, err := settingsService.GetValue(args[0])
	if err != nil {
		return err
	}
	cmd.Printf("%v\n", value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if err := requireSettings(); err != nil {
		return err
	}

	if err := settingsService.SetValue(args[0], args[1]); err != nil {
		return err
	}
	cmd.Printf("Set %s = %s\n", args[0], args[1])
	return nil
}

func runConfigKeys(cmd *cobra.Command, _ []string) error {
	if err := requireSettings(); err != nil {
		return err
	}

	for _, key := range settingsService.Keys() {
		cmd.Println(key)
	}
	return nil
}
