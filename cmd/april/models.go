package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiprl/april/pkg/models/gemini"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the Gemini models available to this API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}

		provider, err := gemini.New(cmd.Context(), apiKey)
		if err != nil {
			return err
		}
		defer provider.Close()

		names, err := provider.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}
