package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/davidcohan/identity-broker/internal/api"
	"github.com/davidcohan/identity-broker/internal/config"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "identity-broker",
		Short: "Authentication broker with pluggable sources and attribute filters",
		Long: `Identity Broker federates logins across password, LDAP, SAML and OIDC
sources, runs each one through a configurable attribute filter pipeline, and
issues signed session tokens to downstream applications.`,
		Version: fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the broker",
		Long:  "Start the HTTP server that handles authentication flows",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "config.yaml", "Path to configuration file")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long:  "Load the configuration, wire every source and filter, and report problems without serving",
		RunE:  runValidate,
	}
	validateCmd.Flags().String("config", "config.yaml", "Path to configuration file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Identity Broker %s\n", Version)
			fmt.Printf("Build Time: %s\n", BuildTime)
			fmt.Printf("Git Commit: %s\n", GitCommit)
		},
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	go func() {
		log.Printf("Starting identity broker on port %d", cfg.Server.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	return server.Shutdown()
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	// Building the server exercises every store, source and filter factory
	if _, err := api.NewServer(cfg); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	fmt.Printf("Configuration OK: %d source(s) defined\n", len(cfg.Sources))
	return nil
}
