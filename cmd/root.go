package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	identifycmd "github.com/fieldquest/fieldquest-go/cmd/identify"
	"github.com/fieldquest/fieldquest-go/cmd/serve"
	"github.com/fieldquest/fieldquest-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fieldquest",
		Short: "FieldQuest identification service CLI",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		identifycmd.Command(settings),
	)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().Float64Var(&settings.Identify.Thresholds.Species, "threshold-species", viper.GetFloat64("identify.thresholds.species"), "Auto-accept confidence threshold for species identifications")
	rootCmd.PersistentFlags().Float64Var(&settings.Identify.Thresholds.Bird, "threshold-bird", viper.GetFloat64("identify.thresholds.bird"), "Auto-accept confidence threshold for bird identifications")
	rootCmd.PersistentFlags().Float64Var(&settings.Identify.Thresholds.Macro, "threshold-macro", viper.GetFloat64("identify.thresholds.macro"), "Auto-accept confidence threshold for macroinvertebrate identifications")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
