package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gatectl",
	Short: "gatectl drives ZLOT gate devices over the backend HTTP API",
	Long: `gatectl is the command-line companion of the ZLOT parking backend.

It can act as the gate device itself, polling the backend for queued OPEN and
CLOSE commands and acknowledging each one after it is executed, or send
one-off gate commands for testing.

Common workflows:

  Run the device agent loop:
    gatectl agent --device-id GATE_001 --interval 2s

  Fetch the pending command once:
    gatectl poll --device-id GATE_001

  Acknowledge a command:
    gatectl ack <command-id>

  Open or close the gate:
    gatectl open --device-id GATE_001
    gatectl close

Configuration:
  Flags, $HOME/.gatectl.yaml or environment variables:
    GATECTL_URL         Backend URL (default: http://localhost:5000)
    GATECTL_DEVICE_ID   Device id (default: GATE_001)`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".gatectl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".gatectl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "GATECTL_VARNAME"
	viper.SetEnvPrefix("GATECTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gatectl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:5000", "ZLOT backend URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().String("device-id", "GATE_001", "gate device id")
	viper.BindPFlag("device_id", rootCmd.PersistentFlags().Lookup("device-id"))
}

func newClient() *GateClient {
	return NewGateClient(viper.GetString("url"))
}
