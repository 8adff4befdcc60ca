package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Fetch the device's pending command once",
	Long:  `Poll the backend once as the device would. This records a heartbeat for the device but does not acknowledge the command.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deviceID := viper.GetString("device_id")
		command, err := newClient().Poll(cmd.Context(), deviceID)
		if err != nil {
			return err
		}
		if command == nil {
			cmd.Printf("No pending command for %s\n", deviceID)
			return nil
		}
		printCommand(cmd, command)
		return nil
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack [command_id]",
	Short: "Acknowledge an executed command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Ack(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cmd.Printf("%s: %s\n", resp.Message, resp.CommandID)
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Queue OPEN for the gate",
	Long:  `Queue OPEN for the gate. The backend closes the gate again after the session duration.`,
	Args:  cobra.NoArgs,
	RunE:  gateAction("open"),
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Queue CLOSE for the gate",
	Args:  cobra.NoArgs,
	RunE:  gateAction("close"),
}

func gateAction(action string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Gate(cmd.Context(), action, viper.GetString("device_id"))
		if err != nil {
			return err
		}
		cmd.Printf("%s (%s)\n", resp.Message, resp.DeviceID)
		return nil
	}
}

func init() {
	rootCmd.AddCommand(pollCmd, ackCmd, openCmd, closeCmd)
}
