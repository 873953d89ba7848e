package cmd

import (
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "peer",
	Short: "Headless huddle participant for joining rooms from the terminal",
	Long: `peer connects to a huddle signaling server, joins a room and runs
the full offer/answer/candidate negotiation against every other member.
Useful for soak-testing rooms and debugging stuck negotiations.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
