// Package mappingapi serves the matching engine, the ontology and data
// parsers and the ABox/R2RML generators over HTTP.
package mappingapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/ontomap/mapping"
	"github.com/c360studio/ontomap/skill"
	"github.com/c360studio/ontomap/source"
	"github.com/c360studio/semstreams/metric"
)

// Dependencies are the collaborators the component serves.
type Dependencies struct {
	Engine  *mapping.Engine
	Sources *source.Registry
	Skills  *skill.Registry
	Metrics *metric.MetricsRegistry
	Logger  *slog.Logger
}

// Component implements the mapping-api HTTP server.
type Component struct {
	config  Config
	engine  *mapping.Engine
	sources *source.Registry
	skills  *skill.Registry
	metrics *metric.MetricsRegistry
	logger  *slog.Logger

	// Lifecycle state machine
	// States: 0=stopped, 1=starting, 2=running, 3=stopping
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
	server    *http.Server
	addr      string
	done      chan error
}

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// NewComponent validates config and builds the component.
func NewComponent(config Config, deps Dependencies) (*Component, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	c := &Component{
		config:  config,
		engine:  deps.Engine,
		sources: deps.Sources,
		skills:  deps.Skills,
		metrics: deps.Metrics,
		logger:  deps.Logger,
	}
	if c.sources == nil {
		c.sources = source.NewRegistry()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Handler returns the API routes wrapped with CORS.
func (c *Component) Handler() http.Handler {
	mux := http.NewServeMux()
	c.RegisterHTTPHandlers("api", mux)
	return withCORS(mux)
}

// Start listens on the configured address and serves in the background.
func (c *Component) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateStopped, stateStarting) {
		current := c.state.Load()
		if current == stateRunning || current == stateStarting {
			return fmt.Errorf("component already running or starting")
		}
		return fmt.Errorf("component in invalid state: %d", current)
	}

	defer func() {
		if c.state.Load() == stateStarting {
			c.state.Store(stateStopped)
		}
	}()

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", c.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", c.config.Addr, err)
	}

	server := &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	done := make(chan error, 1)

	c.mu.Lock()
	c.server = server
	c.addr = ln.Addr().String()
	c.done = done
	c.startTime = time.Now()
	c.mu.Unlock()

	go func() {
		err := server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	c.state.Store(stateRunning)
	c.logger.Info("mapping-api started", "addr", c.addr)
	return nil
}

// Addr returns the bound listen address once started.
func (c *Component) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.addr
}

// Done reports the server's exit error. It is nil before Start.
func (c *Component) Done() <-chan error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

// Stop gracefully shuts the server down.
func (c *Component) Stop(timeout time.Duration) error {
	if !c.state.CompareAndSwap(stateRunning, stateStopping) {
		current := c.state.Load()
		if current == stateStopped || current == stateStopping {
			return nil
		}
		return fmt.Errorf("component in unexpected state: %d", current)
	}

	c.mu.Lock()
	server := c.server
	c.server = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	if server != nil {
		err = server.Shutdown(ctx)
	}

	c.state.Store(stateStopped)
	c.logger.Info("mapping-api stopped")
	return err
}

// IsRunning reports whether the server is serving.
func (c *Component) IsRunning() bool {
	return c.state.Load() == stateRunning
}

// Uptime returns how long the server has been running.
func (c *Component) Uptime() time.Duration {
	if !c.IsRunning() {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.startTime)
}
