package bootstrap

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"newsdesk/internal/adapters/config"
	"newsdesk/internal/adapters/kafka"
	redisclient "newsdesk/internal/adapters/redis"
	"newsdesk/internal/coordinator"
	"newsdesk/internal/council"
	"newsdesk/internal/domain/persistence"
	"newsdesk/internal/events"
	"newsdesk/internal/intelligence"
	"newsdesk/internal/research"
	"newsdesk/internal/services/preference"
	"newsdesk/internal/services/reserve"
	"newsdesk/internal/workers"
	"newsdesk/pkg/errors"
	"newsdesk/pkg/logger"
)

// Container holds all application dependencies and their lifecycle.
// Components are listed in initialization order.
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Tuning       *config.Tuning
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure (both optional)
	Redis         *redisclient.Client
	KV            persistence.KV
	KafkaProducer *kafka.Producer
	Events        *events.Publisher

	// Orchestration core
	Preferences *preference.Store
	Cache       *reserve.Cache
	Agents      *research.Registry
	Fanout      *research.Fanout
	Annotator   *intelligence.Annotator
	Council     *council.Council
	Coordinator *coordinator.Coordinator

	// Background processing
	Scheduler     *workers.Scheduler
	MetricsServer *http.Server

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc

	registerer prometheus.Registerer
}

// Option configures a Container
type Option func(*Container)

// WithRegisterer sends state gauges to reg instead of the default registry
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Container) { c.registerer = reg }
}

// WithContainerLogger skips logger.Init and uses log
func WithContainerLogger(log *logger.Logger) Option {
	return func(c *Container) { c.Log = log }
}

// NewContainer creates a new dependency container
func NewContainer(opts ...Option) *Container {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Container{
		Lifecycle: NewLifecycle(),
		WG:        &sync.WaitGroup{},
		Context:   ctx,
		Cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MustInit loads configuration from the environment and initializes
// every component. Panics on any initialization error (fail-fast at startup).
func (c *Container) MustInit() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	tuning, err := config.LoadTuning(cfg.Pipeline.TuningFile)
	if err != nil {
		panic("failed to load tuning: " + err.Error())
	}
	if err := c.Init(cfg, tuning); err != nil {
		panic("failed to initialize: " + err.Error())
	}
}

// Init builds the components in dependency order
func (c *Container) Init(cfg *config.Config, tuning *config.Tuning) error {
	if tuning == nil {
		tuning = &config.Tuning{}
	}
	c.Config = cfg
	c.Tuning = tuning

	if err := c.initLogging(); err != nil {
		return err
	}
	if err := c.initInfrastructure(); err != nil {
		return err
	}
	c.initCore()
	if err := c.initBackground(); err != nil {
		return err
	}

	c.Log.Infow("✓ Container initialized",
		"agents", c.Agents.Len(),
		"stages", c.Annotator.Describe(),
		"experts", c.Council.ExpertIDs(),
		"redis", c.KV != nil,
		"kafka", c.Events.Enabled(),
	)
	return nil
}

// Start runs the worker scheduler and the metrics endpoint
func (c *Container) Start() error {
	c.Log.Info("Starting background systems...")

	if err := c.Scheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	if c.MetricsServer != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			c.Log.Infow("Serving metrics", "addr", c.MetricsServer.Addr)
			if err := c.MetricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.Log.Errorf("Metrics server failed: %v", err)
				c.Cancel()
			}
		}()
	}

	c.Log.Info("✓ All systems operational")
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")
	c.Cancel()

	c.Lifecycle.Shutdown(
		c.WG,
		c.Scheduler,
		c.MetricsServer,
		c.Council.Chair(),
		c.KV,
		c.KafkaProducer,
		c.Redis,
		c.ErrorTracker,
		c.Log,
	)
}

// RegisterAgent adds a research agent covering topics (none means every topic)
func (c *Container) RegisterAgent(ag research.Agent, topics ...string) error {
	if err := c.Agents.Register(ag, topics...); err != nil {
		return err
	}
	c.Log.Infow("Research agent registered", "agent", ag.ID(), "topics", topics)
	return nil
}
