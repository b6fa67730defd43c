// Package main provides the ontomap binary entry point.
// Ontomap maps ontology datatype properties onto the fields of tabular
// data and turns the accepted mapping into RDF.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	// Register LLM providers via init()
	_ "github.com/c360studio/ontomap/llm/providers"

	"github.com/c360studio/ontomap/config"
	"github.com/spf13/cobra"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "ontomap"

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli holds state shared by all subcommands.
type cli struct {
	configPath string
	logLevel   string

	logger *slog.Logger
	cfg    *config.Config
}

func rootCmd() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Ontology property to table field matcher",
		Long: `Ontomap maps the datatype properties of an ontology (TBox) onto the
fields of CSV, Excel and SQLite tables.

It provides:
- Heuristic matching from names, domains and sample values
- Model-assisted matching through an OpenAI-compatible endpoint
- ABox and R2RML generation from the accepted mapping
- An HTTP API serving all of the above`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		serveCmd(c),
		matchCmd(c),
		parseTBoxCmd(c),
		parseDataCmd(c),
		aboxCmd(c),
		r2rmlCmd(c),
		skillsCmd(c),
		versionCmd(),
	)
	return cmd
}

// setup configures logging and loads configuration.
func (c *cli) setup(cmd *cobra.Command) error {
	c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: parseLevel(c.logLevel)}))
	slog.SetDefault(c.logger)

	if cmd.Name() == "version" {
		return nil
	}

	cfg, err := config.NewLoader(c.logger).Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}
