package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiprl/april/pkg/agent"
	"github.com/aiprl/april/pkg/credentials"
	"github.com/aiprl/april/pkg/ghl"
	"github.com/aiprl/april/pkg/models/gemini"
	"github.com/aiprl/april/pkg/server"
	"github.com/aiprl/april/pkg/session"
	"github.com/aiprl/april/pkg/tools"
)

var (
	serveAddr     string
	serveGHLURL   string
	serveCreds    string
	serveModel    string
	catalogTenant string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}

		store, err := loadCredentialStore()
		if err != nil {
			return err
		}

		bridge := ghl.NewBridge(serveGHLURL, ghl.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}))

		// Catalog discovery needs one valid credential bundle; default to
		// the first configured tenant.
		tenant := catalogTenant
		if tenant == "" {
			tenant = store.TenantIDs()[0]
		}
		bootstrap, err := store.Resolve(tenant)
		if err != nil {
			return fmt.Errorf("catalog tenant: %w", err)
		}

		registry := tools.NewRegistry(bridge)
		bound, err := registry.Discover(ctx, bootstrap)
		if err != nil {
			return err
		}

		provider, err := gemini.New(ctx, apiKey)
		if err != nil {
			return err
		}
		defer provider.Close()

		loop := agent.New(provider, serveModel, bound)
		sessions := session.NewManager(store)

		return server.New(sessions, loop).Start(serveAddr)
	},
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadCredentialStore() (*credentials.Store, error) {
	if serveCreds != "" {
		return credentials.LoadFile(serveCreds)
	}
	if store, ok := credentials.FromEnv(); ok {
		return store, nil
	}
	return nil, fmt.Errorf("no credentials: pass --credentials or set GHL_PIT_TOKEN and GHL_LOCATION_ID")
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8001", "listen address")
	serveCmd.Flags().StringVar(&serveGHLURL, "ghl-url", envOr("GHL_MCP_URL", ghl.DefaultURL), "GoHighLevel MCP endpoint")
	serveCmd.Flags().StringVar(&serveCreds, "credentials", "", "YAML tenant credential file")
	serveCmd.Flags().StringVar(&serveModel, "model", agent.DefaultModel, "Gemini model name")
	serveCmd.Flags().StringVar(&catalogTenant, "catalog-tenant", "", "tenant whose credentials discover the tool catalog (default: first configured)")
}
