// SlideBolt relay.
//
// The relay sits between home hubs, which hold a WebSocket open to it, and
// the Alexa Smart Home service, which posts directives to it. It keeps a
// per-hub device registry and reports device changes back to Alexa.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	_ "github.com/lms-io/alexa-slidebolt/migrations"

	"github.com/lms-io/alexa-slidebolt/internal/alexa"
	"github.com/lms-io/alexa-slidebolt/internal/api"
	"github.com/lms-io/alexa-slidebolt/internal/audit"
	"github.com/lms-io/alexa-slidebolt/internal/bridge"
	"github.com/lms-io/alexa-slidebolt/internal/device"
	"github.com/lms-io/alexa-slidebolt/internal/hub"
	"github.com/lms-io/alexa-slidebolt/internal/identity"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/config"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/database"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/influxdb"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/logging"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/metrics"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/mqtt"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/redis"
	"github.com/lms-io/alexa-slidebolt/internal/propagator"
	"github.com/lms-io/alexa-slidebolt/internal/push"
	"github.com/lms-io/alexa-slidebolt/internal/ratelimit"
	"github.com/lms-io/alexa-slidebolt/internal/relay"
	"github.com/lms-io/alexa-slidebolt/internal/session"
	"github.com/lms-io/alexa-slidebolt/internal/stream"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvFile    = ".env"

	// pollerName keys the propagator's changelog cursor.
	pollerName = "propagator"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command-line flags.
type options struct {
	configPath  string
	envFile     string
	showVersion bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	flags := pflag.NewFlagSet("slidebolt", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file (default: $SLIDEBOLT_CONFIG or "+defaultConfigPath+")")
	flags.StringVar(&opts.envFile, "env-file", defaultEnvFile, "dotenv file loaded before the config; a missing file is ignored")
	flags.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if rest := flags.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		fmt.Printf("slidebolt %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	if err := loadEnvFile(opts.envFile); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}

	log := logging.Default()
	log.Info("starting SlideBolt relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath(opts.configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

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
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// Rate limit backend
	var rdb *goredis.Client
	if cfg.Relay.RateLimit.Backend == config.RateBackendRedis {
		rdb, err = redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() {
			if closeErr := rdb.Close(); closeErr != nil {
				log.Error("error closing redis", "error", closeErr)
			}
		}()
		log.Info("redis connected", "addr", cfg.Redis.Addr)
	}
	rateStore, err := ratelimit.NewStore(cfg.Relay.RateLimit.Backend, db.DB, rdb)
	if err != nil {
		return fmt.Errorf("creating rate limit store: %w", err)
	}
	limiter := ratelimit.New(rateStore, cfg.Relay.RateLimit)

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	if err := healthCheck(ctx, db, rdb, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Stores
	hubs := hub.NewSQLiteRepository(db.DB)
	identities := identity.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	devices.SetLogger(log)
	if influxClient != nil {
		devices.SetStateObserver(influxClient)
	}

	// Hub push channel and sessions
	pushMgr := push.NewManager(cfg.WebSocket, log)

	sessions := session.NewManager(session.NewSQLiteRepository(db), hubs, session.Options{
		ConnectionTTL:       seconds(cfg.Relay.ConnectionTTL),
		SweepInterval:       seconds(cfg.Relay.SweepInterval),
		DefaultMaxPerMinute: cfg.Relay.RateLimit.DefaultPerMinute,
	})
	sessions.SetLogger(log)
	sessions.SetCloser(pushMgr)
	sessions.SetOrphanPurger(devices)

	// Alexa side
	httpClient := alexa.NewHTTPClient(seconds(cfg.Alexa.HTTPTimeout))
	profiles := alexa.NewProfileClient(cfg.Alexa.ProfileURL, httpClient)
	tokens := alexa.NewTokenManager(identities, alexa.NewLWAClient(cfg.Alexa, httpClient))
	tokens.SetLogger(log)
	gateway := alexa.NewEventGateway(cfg.Alexa.EventGatewayURL, httpClient)

	resolver := identity.NewResolver(identities, hubs)
	resolver.SetLogger(log)

	directives := bridge.New(bridge.Deps{
		Profiles:    profiles,
		Claims:      resolver,
		Devices:     devices,
		Connections: sessions,
		Sender:      pushMgr,
		Tokens:      tokens,
		Reports:     gateway,
	}, cfg.Alexa.AllowTestTokens)
	directives.SetLogger(log)
	if cfg.Alexa.AllowTestTokens {
		log.Warn("test bearer tokens are enabled")
	}

	dispatcher := relay.NewDispatcher(relay.Deps{
		Sessions: sessions,
		Devices:  devices,
		Hubs:     hubs,
		Limiter:  limiter,
		Tokens:   tokens,
		Reports:  gateway,
		Sender:   pushMgr,
	})
	dispatcher.SetLogger(log)
	if influxClient != nil {
		dispatcher.SetEventRecorder(influxClient)
	}
	pushMgr.SetHandler(dispatcher)

	// Change propagation
	prop := propagator.New(hubs, tokens, gateway)
	prop.SetLogger(log)

	var sink stream.Sink = prop
	if cfg.Stream.Transport == config.StreamTransportMQTT {
		if mqttClient == nil {
			return fmt.Errorf("stream transport %q requires mqtt.enabled", config.StreamTransportMQTT)
		}
		sink = stream.NewMQTTPublisher(mqttClient)
		onError := func(err error) { log.Warn("dropping malformed change record", "error", err) }
		if err := stream.SubscribeMQTT(ctx, mqttClient, byte(cfg.MQTT.QoS), prop.Handle, onError); err != nil {
			return fmt.Errorf("subscribing to device changes: %w", err)
		}
	}
	poller := stream.NewPoller(stream.NewChangelog(db), sink, pollerName, cfg.Stream)
	poller.SetLogger(log)
	log.Info("change stream ready", "transport", cfg.Stream.Transport)

	// HTTP
	var broker api.BrokerStatus
	if mqttClient != nil {
		broker = mqttClient
	}
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WebSocket:  cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		DB:         db,
		Hubs:       hubs,
		Identities: identities,
		Audit:      auditRepo,
		Directives: directives,
		HubSocket:  pushMgr,
		MQTT:       broker,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pushMgr.Run(gctx) })
	g.Go(func() error { return sessions.Run(gctx) })
	g.Go(func() error { return poller.Run(gctx) })

	log.Info("initialisation complete, waiting for shutdown signal")
	runErr := g.Wait()

	log.Info("shutting down")
	if err := server.Close(); err != nil {
		log.Error("error closing API server", "error", err)
	}
	directives.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	log.Info("SlideBolt relay stopped")
	return nil
}

// getConfigPath returns the flag value, then SLIDEBOLT_CONFIG, then the
// default path.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("SLIDEBOLT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadEnvFile exports the variables of a dotenv file without overriding
// ones already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// healthCheck verifies all infrastructure connections are healthy. Nil
// clients are disabled and skipped.
func healthCheck(ctx context.Context, db *database.DB, rdb *goredis.Client, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if rdb != nil {
		if err := redis.HealthCheck(ctx, rdb); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
