// april is a multi-tenant executive assistant for GoHighLevel CRM.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	april serve --credentials tenants.yaml
//	april chat --tenant user_123
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiprl/april/pkg/models/gemini"
)

var verbosity int

var rootCmd = &cobra.Command{
	Use:          "april",
	Short:        "Multi-tenant GoHighLevel CRM assistant",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		switch {
		case verbosity >= 2:
			// -vv includes full model HTTP traffic dumps.
			level = gemini.LevelTrace
		case verbosity == 1:
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func main() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase logging (-v debug, -vv trace)")
	rootCmd.AddCommand(serveCmd, chatCmd, modelsCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
