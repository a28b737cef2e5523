// Greenhouse agent - secure MQTT session for greenhouse controllers.
//
// The agent keeps a TLS-authenticated MQTT session to the greenhouse broker,
// announces the device's presence, prints inbound commands and sensor
// readings, and publishes a counter heartbeat. Session lifecycle events can
// be journaled to SQLite and mirrored to InfluxDB.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/config"
	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/database"
	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/influxdb"
	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/logging"
	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/mqtt"
	"github.com/vincentmworia/GreenhouseIOT/internal/journal"
	"github.com/vincentmworia/GreenhouseIOT/internal/router"
	"github.com/vincentmworia/GreenhouseIOT/internal/telemetry"
	"github.com/vincentmworia/GreenhouseIOT/migrations"
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
	configEnvVar      = "GREENHOUSE_CONFIG"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1) //nolint:gocritic // cancel is a no-op at exit
	}
}

// newRootCmd builds the command tree. Running the root command without a
// subcommand starts the agent.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "greenhouse",
		Short:         "Secure MQTT agent for greenhouse controllers",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd, configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config file (default $"+configEnvVar+" or "+defaultConfigPath+")")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Connect to the broker and run until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runAgent(cmd, configPath)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "greenhouse %s (commit %s, built %s)\n", version, commit, date)
			},
		},
		newJournalCmd(&configPath),
	)

	return root
}

func runAgent(cmd *cobra.Command, configFlag string) error {
	cfg, path, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	return run(cmd.Context(), cfg, path, cmd.OutOrStdout())
}

// loadConfig resolves the config path and loads it. Only the built-in
// default path may be absent.
func loadConfig(flagValue string) (*config.Config, string, error) {
	path, optional := resolveConfigPath(flagValue)

	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// resolveConfigPath picks the --config flag, then $GREENHOUSE_CONFIG, then the
// default path. The bool reports whether a missing file is acceptable.
func resolveConfigPath(flagValue string) (string, bool) {
	if flagValue != "" {
		return flagValue, false
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path, false
	}
	return defaultConfigPath, true
}

// run wires the agent together and blocks until ctx is cancelled.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Loaded configuration
//   - configPath: Where cfg came from (for logging)
//   - out: Destination for routed inbound messages
//
// Returns:
//   - error: nil on clean shutdown, or error describing the startup failure
func run(ctx context.Context, cfg *config.Config, configPath string, out io.Writer) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting greenhouse agent",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	var opts []mqtt.Option
	opts = append(opts, mqtt.WithLogger(log.With("component", "mqtt")))

	// Session event journal (optional)
	var db *database.DB
	if cfg.Journal.Enabled {
		var err error
		db, err = openJournal(ctx, cfg.Journal)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing journal database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal database", "error", closeErr)
			}
		}()

		recorder := journal.NewRecorder(journal.NewSQLiteRepository(db.DB), log.With("component", "journal"))
		defer recorder.Close()
		opts = append(opts, mqtt.WithObserver(recorder))
		log.Info("session journal enabled", "path", db.Path())
	}

	// InfluxDB mirror (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		var err error
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
		opts = append(opts, mqtt.WithObserver(mqtt.ObserverFunc(influxClient.WriteSessionEvent)))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	session, err := mqtt.NewSession(cfg.MQTT, router.New(out).Route, opts...)
	if err != nil {
		return fmt.Errorf("creating MQTT session: %w", err)
	}
	if err := session.Start(); err != nil {
		return fmt.Errorf("starting MQTT session: %w", err)
	}
	defer func() {
		log.Info("stopping MQTT session")
		session.Stop()
	}()
	log.Info("MQTT session started",
		"broker", cfg.MQTT.Broker.Host,
		"port", cfg.MQTT.Broker.Port,
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	if cfg.Telemetry.Enabled {
		tOpts := []telemetry.Option{telemetry.WithLogger(log.With("component", "telemetry"))}
		if influxClient != nil {
			tOpts = append(tOpts, telemetry.WithMirror(influxClient))
		}
		publisher := telemetry.New(telemetry.ConfigFrom(cfg), session, tOpts...)
		publisher.Start(ctx)
		defer publisher.Stop()
		log.Info("telemetry publisher started",
			"topic", cfg.Telemetry.Topic,
			"interval", cfg.TelemetryInterval().String(),
		)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: telemetry, session (death
	// announcement), InfluxDB flush, journal drain, database.
	return nil
}

// openJournal opens the journal database and applies pending migrations.
func openJournal(ctx context.Context, cfg config.JournalConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		_ = db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// healthCheck verifies the optional stores are reachable. The MQTT session is
// not checked: it connects in the background and retries on its own.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
