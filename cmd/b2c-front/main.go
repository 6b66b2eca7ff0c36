package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/b2c-front/internal"
	"github.com/dgellow/b2c-front/internal/config"
	"github.com/dgellow/b2c-front/internal/inspect"
	"github.com/dgellow/b2c-front/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": "v0.0.1-DEV_EDITION_EXPECT_CHANGES",
		"server": map[string]any{
			"baseURL":        "https://app.yourcompany.com",
			"addr":           ":8080",
			"name":           "b2c-front",
			"allowedOrigins": []string{"https://app.yourcompany.com"},
			"redirectPath":   "/auth-callback",
		},
		"b2c": map[string]any{
			"tenant":                "yourtenant",
			"policy":                "B2C_1_signupsignin",
			"clientId":              map[string]string{"$env": "B2C_CLIENT_ID"},
			"clientSecret":          map[string]string{"$env": "B2C_CLIENT_SECRET"},
			"redirectUri":           "https://app.yourcompany.com/auth-callback",
			"postLogoutRedirectUri": "https://app.yourcompany.com/",
		},
		"backend": map[string]any{
			"callbackUrl":   "https://app.yourcompany.com/api/auth/callback/azure-ad-b2c",
			"timeout":       "10s",
			"redirectUrl":   "https://app.yourcompany.com/",
			"serveCallback": true,
		},
		"storage": map[string]any{
			"kind":            "memory",
			"identityTtl":     "24h",
			"cleanupInterval": "15m",
		},
		"sessionSecret": map[string]string{"$env": "SESSION_SECRET"},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Printf("  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Printf("  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Printf("  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Printf("  - %s\n", warn.Message)
			}
		}
	}

	fmt.Println()
	if len(result.Errors) == 0 && len(result.Warnings) == 0 {
		fmt.Println("Result: PASS")
	} else if len(result.Errors) == 0 {
		fmt.Println("Result: FAIL (warnings present)")
	} else {
		fmt.Println("Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

// resolveRedirect prints the identity resolved from a redirect URL
func resolveRedirect(rawURL string) error {
	report, err := inspect.ResolveRedirect(rawURL)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	resolve := flag.String("resolve", "", "resolve the identity in a redirect URL and exit")
	mcp := flag.Bool("mcp", false, "serve the redirect inspection tools over stdio (MCP)")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *resolve != "" {
		if err := resolveRedirect(*resolve); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *mcp {
		if err := inspect.ServeStdio("b2c-front", BuildVersion); err != nil {
			log.LogError("MCP server failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting b2c-front", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	ctx := context.Background()
	b2cFront, err := internal.NewB2CFront(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create login frontend: %v", err)
		os.Exit(1)
	}

	err = b2cFront.Run()
	if err != nil {
		log.LogError("Failed to start server: %v", err)
		os.Exit(1)
	}
}
