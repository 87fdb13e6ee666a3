// Package cmd assembles the command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/cmd/realtime"
	"github.com/LZHuaaa/AI-Bird-Strike-Detection-System/internal/conf"
)

// RootCommand creates the root command with global flags and all
// subcommands attached.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "birdstrike",
		Short: "Real-time alert escalation and deterrent coordination engine",
	}

	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Datastore.Path, "db", viper.GetString("datastore.path"), "Path to the SQLite database")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}

	rootCmd.AddCommand(realtime.Command(settings))

	return rootCmd
}
