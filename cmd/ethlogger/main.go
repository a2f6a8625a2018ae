package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/config"
	"github.com/chris-j-h/splunk-connect-for-ethereum/pkg/ethloggerConfig"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "ethlogger",
	Short: "Decode Ethereum transactions and logs into JSON records",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var configFile string
var Config *ethloggerConfig.EthloggerConfig

func init() {
	cobra.OnInitialize(initConfigIfPresent)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml or json)")

	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(ethloggerConfig.Debug, false, `"true" or "false"`)

	// setup sub commands
	rootCmd.AddCommand(runCmd)

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(strings.TrimSuffix(ethloggerConfig.EnvPrefix, "_"))
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

// initConfigIfPresent loads --config when given. Flags and environment variables are read later by
// the run command when no file is used.
func initConfigIfPresent() {
	if configFile == "" {
		return
	}
	fmt.Fprintf(os.Stderr, "Using config file: %s\n", configFile)
	data, err := os.ReadFile(configFile)
	if err != nil {
		panic(err)
	}
	// yaml is a superset of json
	Config, err = ethloggerConfig.NewEthloggerConfigFromYamlBytes(data)
	if err != nil {
		panic(err)
	}
}

func main() {
	Execute()
}
