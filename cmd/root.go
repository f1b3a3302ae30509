package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the liquidmail application
var rootCmd = &cobra.Command{
	Use:   "liquidmail",
	Short: "Backend for the LiquidMail frontend",
	Long: `liquidmail is the API backend the LiquidMail frontend talks to.

It connects a user's Gmail account over OAuth, sends mail through the
Gmail API with automatic token refresh, drafts replies with an LLM, and
handles Stripe subscription billing.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "liquidmail version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
