package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mkallio/herbid-go/cmd/importer"
	"github.com/mkallio/herbid-go/cmd/seed"
	"github.com/mkallio/herbid-go/cmd/serve"
	"github.com/mkallio/herbid-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "herbid",
		Short: "HerbID-Go medicinal herb identification backend",
		Long: "HerbID-Go identifies medicinal herbs from photos and resolves their " +
			"traditional uses from a spreadsheet, the local catalog, encyclopedia " +
			"summaries and identification providers.",
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		serve.Command(settings),
		seed.Command(settings),
		importer.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Spreadsheet.Path, "spreadsheet", viper.GetString("spreadsheet.path"), "Path to the herb uses spreadsheet (.csv or .xlsx)")
	rootCmd.PersistentFlags().StringVar(&settings.Similarity.ModelPath, "model", viper.GetString("similarity.modelpath"), "Path to the feature model file")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
}
