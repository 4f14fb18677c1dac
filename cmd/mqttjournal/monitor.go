package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/mqtt-journal/internal/api"
	"github.com/nerrad567/mqtt-journal/internal/archive"
	"github.com/nerrad567/mqtt-journal/internal/console"
	"github.com/nerrad567/mqtt-journal/internal/infrastructure/database"
	"github.com/nerrad567/mqtt-journal/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqtt-journal/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-journal/internal/journal"
	"github.com/nerrad567/mqtt-journal/internal/persist"
	"github.com/nerrad567/mqtt-journal/internal/query"
	"github.com/nerrad567/mqtt-journal/internal/session"
	"github.com/nerrad567/mqtt-journal/migrations"
)

const (
	// helloPayload is published by monitor --hello.
	helloPayload = "Hello from mqtt-journal!"

	// statsInterval is how often session counters go to InfluxDB.
	statsInterval = 30 * time.Second

	hoursPerDay = 24
)

type monitorOptions struct {
	topics []string
	hello  bool
}

func newMonitorCmd(a *app) *cobra.Command {
	var opts monitorOptions

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Subscribe and record messages until interrupted",
		Long: `Connects to the broker, subscribes to the configured topics (or the
--topic flags) and records every message in the journal. On shutdown it
logs journal statistics and, when persistence.save_on_exit is set, saves
the journal to persistence.directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd.Context(), a, opts)
		},
	}
	cmd.Flags().StringArrayVarP(&opts.topics, "topic", "t", nil, "topic filter to subscribe to (repeatable; default mqtt.topics)")
	cmd.Flags().BoolVar(&opts.hello, "hello", false, "publish a test message to the first topic after subscribing")
	return cmd
}

// runMonitor wires transport, session, journal and the optional observers,
// then runs until ctx is cancelled or a background task fails.
//
// Parameters:
//   - ctx: Cancelled on shutdown signals
//   - a: Loaded configuration, logger and output
//   - opts: Command-line overrides
//
// Returns:
//   - error: nil on clean shutdown, or the first startup failure
func runMonitor(ctx context.Context, a *app, opts monitorOptions) error { //nolint:gocognit,gocyclo // startup wiring is sequential
	cfg, log := a.cfg, a.log
	printer := console.New(a.out, cfg.Console.Color)

	topics := cfg.MQTT.Topics
	if len(opts.topics) > 0 {
		topics = opts.topics
	}

	log.Info("starting mqttjournal monitor",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	client, err := mqtt.New(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	client.SetLogger(log)
	defer client.Close() //nolint:errcheck // Close always returns nil

	j := journal.New(cfg.Journal.Capacity)
	sess := session.New(client, session.Options{
		ConnectTimeout: cfg.GetConnectTimeout(),
		BufferSize:     cfg.Journal.BufferSize,
		Logger:         log,
	})
	sess.AddObserver(session.ObserverFunc(j.Appender()))
	if cfg.Console.Enabled {
		sess.AddObserver(printer)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	// Archive (optional)
	var repo *archive.Repository
	if cfg.Archive.Enabled {
		db, openErr := openArchive(ctx, a)
		if openErr != nil {
			return openErr
		}
		defer func() {
			log.Info("closing archive database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing archive database", "error", closeErr)
			}
		}()

		repo = archive.NewRepository(db)
		writer := archive.NewWriter(repo, archive.WriterOptions{
			Retention: time.Duration(cfg.Archive.RetentionDays) * hoursPerDay * time.Hour,
			Logger:    log,
		})
		sess.AddObserver(writer)
		g.Go(func() error { return writer.Run(gctx) })
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influx, connErr := influxdb.Connect(ctx, cfg.InfluxDB, cfg.MQTT.Broker.ClientID)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			influx.Close() //nolint:errcheck // Close always returns nil
			stats := influx.Stats()
			log.Info("InfluxDB connection closed", "points", stats.Queued, "failed", stats.Failed)
		}()
		influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

		sess.AddObserver(influx)
		g.Go(func() error {
			writeSessionStats(gctx, influx, sess, j)
			return nil
		})
	}

	// HTTP API (optional)
	var srv *api.Server
	if cfg.API.Enabled {
		srv, err = api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Persistence: cfg.Persistence,
			Logger:      log,
			Session:     sess,
			Journal:     j,
			Archive:     repo,
			Version:     version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		sess.AddObserver(srv.Hub())
	}

	sess.SetOnStateChange(func(st session.State) {
		log.Info("session state changed", "state", st.String())
		if srv != nil {
			srv.Hub().OnStateChange(st)
		}
	})

	stopSession := startPump(sess)
	defer stopSession()

	if err := sess.Connect(ctx); err != nil {
		printer.Error("Connection failed: %v", err)
		_ = stopPipeline(stopSession, cancel, g) //nolint:errcheck // startup error takes precedence
		return fmt.Errorf("connecting to %s: %w", client.BrokerURL(), err)
	}
	printer.Success("Connected to MQTT broker %s", client.BrokerURL())

	qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated to 0..2 by config.Load
	subscribed := 0
	for _, topic := range topics {
		if subErr := sess.Subscribe(topic, qos); subErr != nil {
			printer.Error("Failed to subscribe to %s: %v", topic, subErr)
			continue
		}
		subscribed++
		printer.Success("Subscribed to %s (QoS %d)", topic, qos)
	}
	if subscribed == 0 && len(topics) > 0 {
		log.Warn("no subscriptions succeeded", "topics", topics)
	}

	if opts.hello && len(topics) > 0 {
		if pubErr := sess.Publish(topics[0], []byte(helloPayload), qos, false); pubErr != nil {
			printer.Warn("Test message not sent: %v", pubErr)
		} else {
			printer.Success("Test message published to %s", topics[0])
		}
	}

	if interval := cfg.GetAutosaveInterval(); interval > 0 {
		g.Go(func() error {
			autosave(gctx, a, j, interval)
			return nil
		})
	}

	if srv != nil {
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	printer.Info("Monitoring messages, press Ctrl+C to stop")
	<-gctx.Done()

	log.Info("shutdown signal received, cleaning up")
	sess.Disconnect()
	waitErr := stopPipeline(stopSession, cancel, g)

	reportStatistics(a, printer, sess, j)

	if cfg.Persistence.SaveOnExit && j.Size() > 0 {
		if path, saveErr := saveJournal(a, j); saveErr != nil {
			printer.Error("Failed to save messages: %v", saveErr)
		} else {
			printer.Success("Saved %d messages to %s", j.Size(), path)
		}
	}

	log.Info("mqttjournal monitor stopped")
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	return nil
}

// startPump runs the session delivery loop on its own context and returns
// a function that stops it and waits until every accepted message has
// reached the observers. Safe to call more than once.
func startPump(sess *session.Session) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Run(ctx) //nolint:errcheck // Run only returns nil
	}()
	return sync.OnceFunc(func() {
		cancel()
		<-done
	})
}

// stopPipeline shuts down in dependency order: the session pump first, so
// observers see every accepted message, then the observers' background
// tasks such as the archive writer.
func stopPipeline(stopSession func(), cancel context.CancelFunc, g *errgroup.Group) error {
	stopSession()
	cancel()
	return g.Wait()
}

// openArchive opens and migrates the SQLite archive.
func openArchive(ctx context.Context, a *app) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        a.cfg.Archive.Path,
		WALMode:     a.cfg.Archive.WALMode,
		BusyTimeout: a.cfg.Archive.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running archive migrations: %w", err)
	}
	a.log.Info("archive database ready", "path", a.cfg.Archive.Path)
	return db, nil
}

// saveJournal writes the journal to a timestamped file in the persistence
// directory.
func saveJournal(a *app, j *journal.Journal) (string, error) {
	path := filepath.Join(a.cfg.Persistence.Directory, persist.DefaultFilename(time.Now()))
	if err := persist.Save(j.Snapshot(), path); err != nil {
		return "", err
	}
	return path, nil
}

// autosave saves a non-empty journal every interval until ctx is done.
func autosave(ctx context.Context, a *app, j *journal.Journal, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if j.Size() == 0 {
				continue
			}
			path, err := saveJournal(a, j)
			if err != nil {
				a.log.Error("autosave failed", "error", err)
				continue
			}
			a.log.Info("journal autosaved", "path", path, "count", j.Size())
		}
	}
}

// writeSessionStats sends session counters to InfluxDB every statsInterval.
func writeSessionStats(ctx context.Context, influx *influxdb.Client, sess *session.Session, j *journal.Journal) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			influx.WriteSessionStats(influxdb.SessionStats{
				Connected:     sess.IsConnected(),
				MessageCount:  sess.MessageCount(),
				JournalSize:   j.Size(),
				Subscriptions: len(sess.SubscribedTopics()),
			})
		}
	}
}

// reportStatistics logs and prints the journal statistics at shutdown.
func reportStatistics(a *app, printer *console.Printer, sess *session.Session, j *journal.Journal) {
	stats := query.Compute(j.Snapshot())
	a.log.Info("session statistics",
		"message_count", sess.MessageCount(),
		"journal_messages", stats.TotalMessages,
		"unique_topics", stats.UniqueTopics,
	)
	printer.Info("Received %d messages (%d retained in journal) on %d topics",
		sess.MessageCount(), stats.TotalMessages, stats.UniqueTopics)
}
