// Command zkpoe proves that a document existed at a point in time without
// revealing it, and anchors the proof in an on-chain registry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"zkpoe/pkg/log"
)

// Version is the build version, set at build time with -ldflags.
var Version = "dev"

// cfg is loaded before any command runs.
var cfg *Config

var rootCmd = &cobra.Command{
	Use:           "zkpoe",
	Short:         "Zero-knowledge proof of existence for documents",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		if err := c.validate(); err != nil {
			return err
		}
		log.Init(c.Log.Level, c.Log.Output)
		cfg = c
		return nil
	},
}

func init() {
	addConfigFlags(rootCmd.PersistentFlags())
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(
		setupCmd(),
		proveCmd(),
		discloseCmd(),
		resumeCmd(),
		verifyCmd(),
		disclosuresCmd(),
		commitmentsCmd(),
		sessionsCmd(),
		receiptCmd(),
		saltCmd(),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

// withApp builds the application for the duration of a command.
func withApp(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		defer a.Close()
		return run(cmd, args, a)
	}
}
