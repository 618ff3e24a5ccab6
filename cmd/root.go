package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sentinelvision/sentinel-go/cmd/devices"
	"github.com/sentinelvision/sentinel-go/cmd/history"
	"github.com/sentinelvision/sentinel-go/cmd/notify"
	"github.com/sentinelvision/sentinel-go/cmd/realtime"
	"github.com/sentinelvision/sentinel-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Sentinel Vision CLI",
		Long:  "Realtime multi-camera object detection with person alerting.",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	// Add sub-commands to the root command.
	subcommands := []*cobra.Command{
		realtime.Command(settings),
		devices.Command(settings),
		history.Command(settings),
		notify.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(&settings.UserID, "user", "u", viper.GetString("userid"), "User id owning history, notifications and camera settings")
	rootCmd.PersistentFlags().StringVar(&settings.Store.Path, "db", viper.GetString("store.path"), "Path to the SQLite database file")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
