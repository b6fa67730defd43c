package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/c360studio/ontomap/export"
	"github.com/c360studio/ontomap/mapping"
	"github.com/c360studio/ontomap/ontology"
	mappingapi "github.com/c360studio/ontomap/processor/mapping-api"
	"github.com/c360studio/ontomap/source"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 30 * time.Second

func serveCmd(c *cli) *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				c.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("watch") {
				c.cfg.Skills.Watch = watch
			}
			return c.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload skills when SKILL.md files change")
	return cmd
}

func (c *cli) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	app, err := NewApp(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer app.Close()

	apiConfig := mappingapi.DefaultConfig()
	apiConfig.Addr = c.cfg.Server.Addr
	apiConfig.Mode = c.cfg.Matching.Mode
	apiConfig.Threshold = c.cfg.Matching.Threshold
	apiConfig.SkillName = c.cfg.Skills.Name
	apiConfig.BaseIRI = c.cfg.Export.BaseIRI
	apiConfig.OutputDir = c.cfg.Export.OutputDir
	apiConfig.Version = Version

	api, err := mappingapi.NewComponent(apiConfig, mappingapi.Dependencies{
		Engine:  app.engine,
		Sources: app.sources,
		Skills:  app.skills,
		Metrics: app.metrics,
		Logger:  c.logger,
	})
	if err != nil {
		return err
	}

	// Setup signal handling
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if c.cfg.Skills.Watch {
		go func() {
			if err := app.skills.Watch(ctx); err != nil {
				c.logger.Error("Skill watcher stopped", "error", err)
			}
		}()
	}

	if err := api.Start(ctx); err != nil {
		return err
	}
	c.logger.Info("Ontomap ready", "version", Version, "addr", api.Addr(), "mode", c.cfg.Matching.Mode)

	var serveErr error
	select {
	case <-ctx.Done():
		c.logger.Info("Received shutdown signal")
	case serveErr = <-api.Done():
	}

	if err := api.Stop(shutdownTimeout); err != nil {
		c.logger.Error("Error stopping API", "error", err)
	}
	c.logger.Info("Ontomap shutdown complete")
	return serveErr
}

func matchCmd(c *cli) *cobra.Command {
	var (
		tboxPath  string
		dataPaths []string
		mode      string
		threshold float64
		skillName string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match ontology properties to table fields",
		Example: `  ontomap match --tbox ontology.ttl --data customers.csv --data orders.xlsx
  ontomap match --tbox ontology.ttl --data shop.db --mode llm --threshold 0.6 -o matches.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "" {
				c.cfg.Matching.Mode = mode
			}
			if cmd.Flags().Changed("threshold") {
				c.cfg.Matching.Threshold = threshold
			}

			app, err := NewApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			tbox, err := readTBox(tboxPath)
			if err != nil {
				return err
			}
			tables, err := readTables(app.sources, dataPaths)
			if err != nil {
				return err
			}

			req := mapping.Request{
				Properties: tbox.Properties,
				Tables:     tables,
				Mode:       mapping.Mode(c.cfg.Matching.Mode),
				Threshold:  c.cfg.Matching.Threshold,
			}
			if req.Mode == mapping.ModeLLM {
				req.SkillDoc = app.SkillDoc(skillName)
			}

			results, err := app.engine.Match(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, mappingapi.MatchResponse{Matches: results})
		},
	}
	cmd.Flags().StringVar(&tboxPath, "tbox", "", "Ontology document (.ttl, .nt, .rdf, .owl)")
	cmd.Flags().StringArrayVar(&dataPaths, "data", nil, "Data file (.csv, .xlsx, .db); repeatable")
	cmd.Flags().StringVar(&mode, "mode", "", "Matching mode: heuristic or llm (overrides matching.mode)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.5, "Acceptance threshold in [0,1]")
	cmd.Flags().StringVar(&skillName, "skill", "", "Skill document for llm mode (overrides skills.name)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write JSON to this file instead of stdout")
	_ = cmd.MarkFlagRequired("tbox")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func parseTBoxCmd(_ *cli) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "parse-tbox <file>",
		Short: "Parse an ontology document and print its properties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbox, err := readTBox(args[0])
			if err != nil {
				return err
			}
			tbox.Turtle = ""
			return writeOutput(cmd.OutOrStdout(), output, tbox)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write JSON to this file instead of stdout")
	return cmd
}

func parseDataCmd(_ *cli) *cobra.Command {
	var (
		output   string
		withRows bool
	)
	cmd := &cobra.Command{
		Use:   "parse-data <file>...",
		Short: "Parse tabular files and print their tables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := readTables(source.NewRegistry(), args)
			if err != nil {
				return err
			}
			if !withRows {
				for i := range tables {
					tables[i].Rows = nil
				}
			}
			return writeOutput(cmd.OutOrStdout(), output, mappingapi.ParseDataResponse{Tables: tables})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write JSON to this file instead of stdout")
	cmd.Flags().BoolVar(&withRows, "rows", false, "Include every row, not just samples")
	return cmd
}

func aboxCmd(c *cli) *cobra.Command {
	var (
		dataPaths   []string
		mappingPath string
		baseIRI     string
		format      string
		outDir      string
	)
	cmd := &cobra.Command{
		Use:   "abox",
		Short: "Generate an ABox from data files and an accepted mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := readTables(source.NewRegistry(), dataPaths)
			if err != nil {
				return err
			}
			items, err := readMapping(mappingPath)
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			result, err := export.GenerateABox(tables, items, export.ABoxOptions{
				BaseIRI:   firstNonEmpty(baseIRI, c.cfg.Export.BaseIRI),
				Format:    f,
				OutputDir: outDir,
			})
			if err != nil {
				return err
			}
			return emitDocument(cmd, result.Content, result.FilePath)
		},
	}
	cmd.Flags().StringArrayVar(&dataPaths, "data", nil, "Data file (.csv, .xlsx, .db); repeatable")
	cmd.Flags().StringVarP(&mappingPath, "mapping", "m", "", "Mapping JSON: a list of items or a match result")
	cmd.Flags().StringVar(&baseIRI, "base-iri", "", "Base IRI for row subjects (overrides export.base_iri)")
	cmd.Flags().StringVar(&format, "format", "turtle", "Output format: turtle or ntriples")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Write abox-<timestamp> file into this directory")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("mapping")
	return cmd
}

func r2rmlCmd(c *cli) *cobra.Command {
	var (
		mappingPath string
		baseIRI     string
		tableName   string
		outDir      string
	)
	cmd := &cobra.Command{
		Use:   "r2rml",
		Short: "Generate an R2RML mapping document",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readMapping(mappingPath)
			if err != nil {
				return err
			}
			result, err := export.GenerateR2RML(items, export.R2RMLOptions{
				BaseIRI:   firstNonEmpty(baseIRI, c.cfg.Export.BaseIRI),
				TableName: tableName,
				OutputDir: outDir,
			})
			if err != nil {
				return err
			}
			return emitDocument(cmd, result.Content, result.FilePath)
		},
	}
	cmd.Flags().StringVarP(&mappingPath, "mapping", "m", "", "Mapping JSON: a list of items or a match result")
	cmd.Flags().StringVar(&baseIRI, "base-iri", "", "Base IRI for subject templates (overrides export.base_iri)")
	cmd.Flags().StringVar(&tableName, "table", "", "Table name for items that do not name one")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Write mapping.r2rml.ttl into this directory")
	_ = cmd.MarkFlagRequired("mapping")
	return cmd
}

func skillsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List skill documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			skills := app.skills.Skills()
			if len(skills) == 0 {
				fmt.Fprintf(out, "No skills under %s\n", app.skills.Root())
				return nil
			}
			for _, s := range skills {
				marker := " "
				if s.Name == c.cfg.Skills.Name {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-20s %s\n", marker, s.Name, s.Description)
			}
			return nil
		},
	}
}

func readTBox(path string) (*ontology.TBox, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ontology: %w", err)
	}
	return ontology.Parse(content, filepath.Base(path))
}

func readTables(reg *source.Registry, paths []string) ([]source.TableItem, error) {
	files := make([]source.File, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read data file: %w", err)
		}
		files = append(files, source.File{Name: filepath.Base(p), Content: content})
	}
	return reg.ParseFiles(files)
}

// readMapping accepts either a JSON list of mapping items or an object
// with "mapping" items or "matches" results.
func readMapping(path string) ([]export.MappingItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	return decodeMapping(data)
}

func decodeMapping(data []byte) ([]export.MappingItem, error) {
	var items []export.MappingItem
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}

	var doc struct {
		Mapping []export.MappingItem  `json:"mapping"`
		Matches []mapping.MatchResult `json:"matches"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if len(doc.Mapping) > 0 {
		return doc.Mapping, nil
	}
	if doc.Matches != nil {
		return export.MappingFromResults(doc.Matches), nil
	}
	return nil, errors.New("parse mapping: expected a list, \"mapping\" or \"matches\"")
}

func writeOutput(stdout io.Writer, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

// emitDocument prints the document, or where it was written.
func emitDocument(cmd *cobra.Command, content, filePath string) error {
	out := cmd.OutOrStdout()
	if filePath != "" {
		_, err := fmt.Fprintf(out, "Wrote %s\n", filePath)
		return err
	}
	_, err := io.WriteString(out, content)
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
