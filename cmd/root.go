package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shield",
	Short: "Sign swap intents for off-chain execution",
	Long: `shield builds swap intents and signs them with a local key, an encrypted
keystore or clef, so they can be executed off-chain instead of going
through the public mempool.

Configuration is read from the environment and an optional .env file.
Session state is local only; nothing is settled by this tool.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.AddCommand(
		newSignCommand(),
		newVerifyCommand(),
		newStatusCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
