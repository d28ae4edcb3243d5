// Gallery Core - self-hosted media gallery server
//
// This is the main entry point for the gallery server. It serves a
// directory tree of photos and videos to logged-in users, with accounts,
// roles and an audit trail kept in a local SQLite database.
//
// Optional integrations:
//   - MQTT: audit events are published on gallery/audit/<action>
//   - InfluxDB: login outcomes and audit counters
//   - Redis: shared session store
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/gallery-core/migrations"

	"github.com/nerrad567/gallery-core/internal/api"
	"github.com/nerrad567/gallery-core/internal/audit"
	"github.com/nerrad567/gallery-core/internal/auth"
	"github.com/nerrad567/gallery-core/internal/gallery"
	"github.com/nerrad567/gallery-core/internal/infrastructure/config"
	"github.com/nerrad567/gallery-core/internal/infrastructure/database"
	"github.com/nerrad567/gallery-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/gallery-core/internal/infrastructure/logging"
	"github.com/nerrad567/gallery-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/gallery-core/internal/infrastructure/redis"
	"github.com/nerrad567/gallery-core/internal/media"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// sessionSweepInterval is how often expired in-memory sessions are dropped.
const sessionSweepInterval = 5 * time.Minute

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown after ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting gallery core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	health := map[string]api.HealthChecker{"database": db}

	mqttClient, err := connectMQTT(cfg, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		health["mqtt"] = mqttClient
	}

	influxClient, err := connectInfluxDB(cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		health["influxdb"] = influxClient
	}

	redisClient, err := connectRedis(ctx, cfg, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := redisClient.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		health["redis"] = redisClient
	}

	// Sinks only receive entries once the audit row has committed.
	var sinks audit.MultiSink
	if mqttClient != nil {
		sinks = append(sinks, audit.NewMQTTSink(mqttClient, mqtt.Topics{}.AuditEvent, log))
	}
	var logins auth.LoginRecorder
	if influxClient != nil {
		sinks = append(sinks, audit.NewTelemetrySink(influxClient))
		logins = influxClient
	}

	users := auth.NewStore(auth.StoreDeps{
		DB:     db.DB,
		Hasher: auth.NewPasswordHasher(auth.DefaultArgon2Params),
		Sink:   sinks,
		Logger: log.Logger,
	})
	if _, seedErr := auth.SeedAdmin(ctx, users, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	g, gctx := errgroup.WithContext(ctx)

	var sessions auth.SessionStore
	if cfg.Session.Store == config.SessionStoreRedis {
		sessions = auth.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
		log.Info("session store: redis", "prefix", cfg.Redis.KeyPrefix)
	} else {
		mem := auth.NewMemoryStore()
		g.Go(func() error {
			mem.Run(gctx, sessionSweepInterval)
			return nil
		})
		sessions = mem
		log.Info("session store: memory")
	}

	manager := auth.NewManager(auth.ManagerConfig{
		Users:        users,
		Sessions:     sessions,
		Tokens:       auth.NewTokenCodec([]byte(cfg.Session.Secret)),
		MaxAge:       cfg.SessionMaxAge(),
		FailureDelay: cfg.LoginFailureDelay(),
		Logger:       log.Logger,
		Telemetry:    logins,
	})

	if mkErr := os.MkdirAll(cfg.Media.Root, 0o750); mkErr != nil {
		return fmt.Errorf("creating media root: %w", mkErr)
	}
	resolver, err := media.NewResolver(cfg.Media.Root, log.Logger)
	if err != nil {
		return fmt.Errorf("opening media root: %w", err)
	}
	log.Info("media root ready", "path", resolver.Root())

	svc := gallery.New(gallery.Deps{
		Auth:           manager,
		Users:          users,
		Media:          resolver,
		Audit:          audit.NewRepository(db.DB, sinks),
		Logger:         log.Logger,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})

	apiDeps := api.Deps{
		Config:         cfg.API,
		Session:        cfg.Session,
		Security:       cfg.Security,
		Logger:         log,
		Gallery:        svc,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Health:         health,
		Version:        version,
	}
	if influxClient != nil {
		apiDeps.Telemetry = influxClient
	}
	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(gctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, cleaning up")
		return server.Close()
	})

	if waitErr := g.Wait(); waitErr != nil {
		return waitErr
	}

	log.Info("gallery core stopped")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("GALLERY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT returns nil when MQTT is disabled.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled, audit events will not be published")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// connectInfluxDB returns nil when telemetry is disabled.
func connectInfluxDB(cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(writeErr error) {
		log.Error("InfluxDB write error", "error", writeErr)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// connectRedis returns nil when Redis is disabled.
func connectRedis(ctx context.Context, cfg *config.Config, log *logging.Logger) (*redis.Client, error) {
	client, err := redis.Connect(ctx, cfg.Redis)
	if errors.Is(err, redis.ErrDisabled) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	log.Info("Redis connected")
	return client, nil
}
