package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chairgate/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "chairgate",
		Short:         "Chair telemetry gateway - receive, parse, filter and forward chair records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to YAML configuration file")

	load := func() (*config.Config, error) {
		return config.LoadWith(v, configFile)
	}

	rootCmd.AddCommand(
		newServeCmd(v, load),
		newEmitCmd(v, load),
		newConfigCmd(load),
	)
	return rootCmd
}

type loader func() (*config.Config, error)

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}
