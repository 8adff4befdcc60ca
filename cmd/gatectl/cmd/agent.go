package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"zlot-parking/internal/models"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const maxBackoff = 30 * time.Second

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the device loop: poll, execute, acknowledge",
	Long: `Run as the gate device. Every interval the agent polls the backend,
prints the command it received and acknowledges it. Transport failures back
off exponentially up to 30s; the loop stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a := &agent{
			client:     newClient(),
			deviceID:   viper.GetString("device_id"),
			interval:   viper.GetDuration("interval"),
			maxBackoff: maxBackoff,
			out:        cmd.OutOrStdout(),
			wait:       sleep,
		}
		cmd.Printf("Agent started for %s (every %s)\n", a.deviceID, a.interval)
		if err := a.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

type agent struct {
	client     *GateClient
	deviceID   string
	interval   time.Duration
	maxBackoff time.Duration
	out        io.Writer
	wait       func(ctx context.Context, d time.Duration) error
}

func (a *agent) run(ctx context.Context) error {
	delay := a.interval
	for {
		err := a.step(ctx)
		var apiErr *APIError
		switch {
		case err == nil:
			delay = a.interval
		case errors.As(err, &apiErr) && apiErr.StatusCode < 500:
			// Client errors (unknown device, bad id) will not heal by retrying.
			return err
		default:
			delay = nextBackoff(delay, a.interval, a.maxBackoff)
			fmt.Fprintf(a.out, "poll failed: %v (retrying in %s)\n", err, delay)
		}

		if err := a.wait(ctx, delay); err != nil {
			return err
		}
	}
}

// step polls once and acknowledges the command it receives, if any.
func (a *agent) step(ctx context.Context) error {
	cmd, err := a.client.Poll(ctx, a.deviceID)
	if err != nil {
		return err
	}
	if cmd == nil {
		return nil
	}

	fmt.Fprintf(a.out, "%s %s %s\n", time.Now().Format(time.TimeOnly), cmd.Command, cmd.ID)
	if _, err := a.client.Ack(ctx, cmd.ID); err != nil {
		return fmt.Errorf("ack %s: %w", cmd.ID, err)
	}
	return nil
}

// nextBackoff doubles the delay after a failure, starting from base and
// capped at limit.
func nextBackoff(cur, base, limit time.Duration) time.Duration {
	if cur < base {
		cur = base
	}
	next := cur * 2
	if next > limit {
		return limit
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func printCommand(cmd *cobra.Command, c *models.Command) {
	cmd.Printf("Command:  %s\n", c.Command)
	cmd.Printf("ID:       %s\n", c.ID)
	cmd.Printf("Queued:   %s\n", c.CreatedAt.Format(time.RFC3339))
}

func init() {
	rootCmd.AddCommand(agentCmd)

	agentCmd.Flags().Duration("interval", 2*time.Second, "poll interval")
	viper.BindPFlag("interval", agentCmd.Flags().Lookup("interval"))
}
