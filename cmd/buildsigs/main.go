package main

import (
	"os"
	"strings"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/ethloggerConfig"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "buildsigs",
	Short: "Build and import public function and event signature tables",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	viper.SetEnvPrefix(strings.TrimSuffix(ethloggerConfig.EnvPrefix, "_"))
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().Bool(ethloggerConfig.Debug, false, `"true" or "false"`)

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(importCmd)

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func bindFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func main() {
	Execute()
}
