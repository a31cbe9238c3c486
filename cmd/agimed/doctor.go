package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/agimeconfig"
	"github.com/haasonsaas/nexus/internal/models"
)

// buildDoctorCmd creates the "doctor" command, a scoped-down analog of the
// teacher's config/plugin validator: this engine takes no config file, so
// doctor instead validates the resolved environment and, with --probe,
// exercises the configured LLM provider with a one-token completion.
func buildDoctorCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate environment configuration and LLM provider connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg := agimeconfig.Load()
			fmt.Fprintf(out, "listen address: %s\n", cfg.Addr())

			if cfg.JWTSecret == "" {
				fmt.Fprintln(out, "warning: AGIME_JWT_SECRET/GOOSE_JWT_SECRET not set, JWT auth disabled")
			}

			if region, ok := agimeconfig.Lookup("BEDROCK_REGION"); ok {
				discovery := models.NewBedrockDiscovery(models.BedrockDiscoveryConfig{Enabled: true, Region: region}, nil)
				discovered, err := discovery.Discover(cmd.Context())
				if err != nil {
					fmt.Fprintf(out, "warning: bedrock model discovery failed: %v\n", err)
				} else if err := discovery.RegisterWithCatalog(cmd.Context(), models.DefaultCatalog); err != nil {
					fmt.Fprintf(out, "warning: bedrock catalog registration failed: %v\n", err)
				} else {
					fmt.Fprintf(out, "discovered %d bedrock foundation models\n", len(discovered))
				}
			}

			provider, err := buildProvider()
			if err != nil {
				return fmt.Errorf("llm provider: %w", err)
			}
			fmt.Fprintf(out, "llm provider: %s (supports_tools=%v)\n", provider.Name(), provider.SupportsTools())
			for _, m := range provider.Models() {
				fmt.Fprintf(out, "  model: %s\n", m.ID)
				if cat, ok := models.DefaultCatalog.Get(m.ID); ok {
					if cat.Deprecated {
						fmt.Fprintf(out, "    warning: %s is marked deprecated in the model catalog\n", m.ID)
					}
				} else {
					fmt.Fprintf(out, "    note: %s is not registered in the model catalog\n", m.ID)
				}
			}

			if !probe {
				return nil
			}
			return probeProvider(cmd.Context(), out, provider)
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Send a minimal completion request to verify provider connectivity")
	return cmd
}

func probeProvider(ctx context.Context, out io.Writer, provider agent.LLMProvider) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	chunks, err := provider.Complete(ctx, &agent.CompletionRequest{
		Model: provider.Models()[0].ID,
		Messages: []agent.CompletionMessage{
			{Role: "user", Content: "ping"},
		},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("probe request failed: %w", err)
	}
	for chunk := range chunks {
		if chunk.Error != nil {
			return fmt.Errorf("probe stream error: %w", chunk.Error)
		}
	}
	fmt.Fprintln(out, "probe: ok")
	return nil
}
