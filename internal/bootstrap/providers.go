package bootstrap

import (
	"context"
	"net/http"
	"time"

	"newsdesk/internal/adapters/config"
	errnoop "newsdesk/internal/adapters/errors/noop"
	"newsdesk/internal/adapters/errors/sentry"
	"newsdesk/internal/adapters/kafka"
	redisclient "newsdesk/internal/adapters/redis"
	"newsdesk/internal/coordinator"
	"newsdesk/internal/council"
	"newsdesk/internal/domain/profile"
	"newsdesk/internal/events"
	"newsdesk/internal/intelligence"
	"newsdesk/internal/metrics"
	redisrepo "newsdesk/internal/repository/redis"
	"newsdesk/internal/research"
	"newsdesk/internal/services/preference"
	"newsdesk/internal/services/reserve"
	"newsdesk/pkg/errors"
	"newsdesk/pkg/logger"
)

// Version is stamped into error reports
var Version = "dev"

// ========================================
// Phase 1: Logging & error tracking
// ========================================

func (c *Container) initLogging() error {
	if c.Log == nil {
		if err := logger.Init(c.Config.App.LogLevel, c.Config.App.Env); err != nil {
			return errors.Wrap(err, "init logger")
		}
		c.Log = logger.Get()
	}
	c.Log.Infof("Starting %s in %s mode", c.Config.App.Name, c.Config.App.Env)

	c.ErrorTracker = provideErrorTracker(c.Config, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)
	return nil
}

// ========================================
// Phase 2: Infrastructure (optional)
// ========================================

func (c *Container) initInfrastructure() error {
	if c.Config.Redis.Enabled {
		c.Log.Infow("Connecting to Redis...", "addr", c.Config.Redis.Addr())
		client, err := redisclient.NewClient(c.Context, c.Config.Redis)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		c.Redis = client
		c.KV = redisrepo.NewKVStore(client.Client())
		c.Log.Info("✓ Redis connected")
	} else {
		c.Log.Info("Redis disabled, profiles and influence stay in memory")
	}

	var producer events.Producer
	if c.Config.Kafka.Enabled {
		c.KafkaProducer = provideKafkaProducer(c.Config, c.Log)
		producer = c.KafkaProducer
	}
	c.Events = events.NewPublisher(producer, events.Topics{
		Selection:  c.Config.Kafka.SelectionTopic,
		Preference: c.Config.Kafka.PreferenceTopic,
	}, logger.Component("events"))
	return nil
}

// ========================================
// Phase 3: Orchestration core
// ========================================

func (c *Container) initCore() {
	cfg := c.Config

	storeOpts := []preference.Option{
		preference.WithMaxRetries(cfg.Preferences.MaxRetries),
		preference.WithListener(c.onPreferenceChanged),
	}
	if c.KV != nil {
		storeOpts = append(storeOpts, preference.WithPersistence(c.KV))
	}
	c.Preferences = preference.NewStore(storeOpts...)

	c.Cache = reserve.NewCache(reserve.Config{
		DefaultTTL: cfg.Cache.TTL,
		MaxPerUser: cfg.Cache.MaxPerUser,
		MaxTotal:   cfg.Cache.MaxTotal,
	})

	c.Agents = research.NewRegistry()
	c.Fanout = research.NewFanout(research.Config{
		Workers:      cfg.Pipeline.FanoutWorkers,
		AgentTimeout: cfg.Pipeline.AgentTimeout,
		RateLimit:    cfg.Pipeline.AgentRateLimit,
		RateBurst:    cfg.Pipeline.AgentRateBurst,
	})

	icfg := intelligenceConfig(c.Tuning)
	c.Annotator = intelligence.New(icfg, regionalRisk(c.Tuning))

	specs := expertSpecs(c.Tuning)
	experts := council.BuildExperts(specs, icfg.Corroboration.Cap)
	chair := council.NewChair(expertIDs(specs), logger.Component("debate_chair"))
	if c.KV != nil {
		loadCtx, cancel := context.WithTimeout(c.Context, 5*time.Second)
		if err := chair.Load(loadCtx, c.KV); err != nil {
			c.Log.Warnw("Influence snapshot not restored, starting from defaults", "error", err)
		}
		cancel()
	}
	c.Council = council.New(councilConfig(cfg.Council), experts, chair)

	c.Coordinator = coordinator.New(
		coordinator.Config{
			RequestTimeout: cfg.Pipeline.RequestTimeout,
			TopK:           cfg.Pipeline.TopK,
			MaxRequested:   cfg.Pipeline.MaxRequested,
			CacheTTL:       cfg.Cache.TTL,
		},
		c.Preferences,
		c.Agents,
		c.Fanout,
		c.Annotator,
		c.Council,
		c.Cache,
		coordinator.WithEvents(c.Events),
	)

	c.Log.Info("✓ Orchestration core initialized")
}

// onPreferenceChanged drops the user's reserves, which were ranked
// under the previous weights, and announces the new profile.
func (c *Container) onPreferenceChanged(ctx context.Context, p profile.UserProfile) {
	dropped := c.Cache.InvalidateUser(p.UserID)
	c.Log.Debugw("Reserves invalidated after preference change", "user_id", p.UserID, "entries", dropped)
	c.Events.PreferenceChanged(ctx, p)
}

// ========================================
// Phase 4: Background processing
// ========================================

func (c *Container) initBackground() error {
	metrics.Init()
	collector := metrics.NewStateCollector(c.Cache, c.Preferences, c.Council.Chair())
	if err := metrics.RegisterStateCollector(c.registerer, collector); err != nil {
		return errors.Wrap(err, "register state collector")
	}

	c.Scheduler = provideScheduler(c.Config, c.Cache, c.Council.Chair(), c.Annotator.Tracker(), c.KV)

	if addr := c.Config.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		c.MetricsServer = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return nil
}

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("Kafka brokers not configured, using default localhost:9092")
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
	log.Infow("✓ Kafka producer initialized", "brokers", cfg.Kafka.Brokers)
	return producer
}
