package main

import (
	"fmt"
	"log/slog"

	"github.com/c360studio/ontomap/audit"
	"github.com/c360studio/ontomap/config"
	"github.com/c360studio/ontomap/llm"
	"github.com/c360studio/ontomap/mapping"
	"github.com/c360studio/ontomap/model"
	"github.com/c360studio/ontomap/skill"
	"github.com/c360studio/ontomap/source"
	"github.com/c360studio/semstreams/metric"
)

// App is the main application that wires together all components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	models  *model.Registry
	client  *llm.Client
	engine  *mapping.Engine
	sink    *audit.MultiSink
	skills  *skill.Registry
	sources *source.Registry
	metrics *metric.MetricsRegistry
}

// NewApp creates the application from a loaded configuration.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{
		cfg:     cfg,
		logger:  logger,
		sources: source.NewRegistry(),
		metrics: metric.NewMetricsRegistry(),
	}

	sink, err := openSinks(cfg.Audit, logger)
	if err != nil {
		return nil, err
	}
	app.sink = sink

	models, err := cfg.ModelRegistry()
	if err != nil {
		app.Close()
		return nil, err
	}
	app.models = models
	app.client = llm.NewClient(models, llm.WithLogger(logger))

	skills, err := skill.NewRegistry(cfg.Skills.Root, skill.WithLogger(logger))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("load skills: %w", err)
	}
	app.skills = skills

	matchMetrics, err := mapping.NewMetrics(app.metrics)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	invoker := mapping.NewModelInvoker(app.client,
		mapping.WithCapability(cfg.Model.Capability),
		mapping.WithTemperature(cfg.Model.Temperature),
		mapping.WithInvokerLogger(logger))

	app.engine = mapping.NewEngine(
		mapping.WithInvoker(invoker),
		mapping.WithSink(app.sink),
		mapping.WithBatchSize(cfg.Matching.BatchSize),
		mapping.WithBatchTimeout(cfg.Matching.BatchTimeout),
		mapping.WithMetrics(matchMetrics),
		mapping.WithLogger(logger))

	logger.Debug("Application wired",
		"mode", cfg.Matching.Mode,
		"audit_sinks", sink.Len(),
		"skills", len(skills.List()),
		"models", len(models.ListEndpoints()))
	return app, nil
}

// openSinks builds the audit fan-out from configuration.
func openSinks(cfg config.AuditConfig, logger *slog.Logger) (*audit.MultiSink, error) {
	var sinks []audit.Sink
	if cfg.File != "" {
		sinks = append(sinks, audit.NewFileSink(cfg.File))
	}
	if cfg.SQLite != "" {
		s, err := audit.OpenSQLiteSink(cfg.SQLite)
		if err != nil {
			closeSinks(sinks)
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.NATSURL != "" {
		s, err := audit.ConnectNATSSink(cfg.NATSURL,
			audit.WithSubject(cfg.NATSSubject),
			audit.WithLogger(logger))
		if err != nil {
			closeSinks(sinks)
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return audit.NewMultiSink(sinks...), nil
}

func closeSinks(sinks []audit.Sink) {
	_ = audit.NewMultiSink(sinks...).Close()
}

// SkillDoc returns the named skill document, or the configured one.
// A missing skill yields an empty document and a warning.
func (a *App) SkillDoc(name string) string {
	if name == "" {
		name = a.cfg.Skills.Name
	}
	if name == "" {
		return ""
	}
	doc, err := a.skills.Doc(name)
	if err != nil {
		a.logger.Warn("Skill document unavailable, using built-in instructions", "skill", name, "error", err)
		return ""
	}
	return doc
}

// Close releases audit sinks.
func (a *App) Close() error {
	if a.sink == nil {
		return nil
	}
	return a.sink.Close()
}
