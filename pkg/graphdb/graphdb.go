// Package graphdb opens a complete framegraph database from configuration:
// logger, metrics, journal, transaction manager, framed types, indexes and
// optional S3 checkpoint upload.
package graphdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dd0wney/cluso-framegraph/pkg/backup"
	"github.com/dd0wney/cluso-framegraph/pkg/config"
	"github.com/dd0wney/cluso-framegraph/pkg/frame"
	"github.com/dd0wney/cluso-framegraph/pkg/health"
	"github.com/dd0wney/cluso-framegraph/pkg/kvlog"
	"github.com/dd0wney/cluso-framegraph/pkg/logging"
	"github.com/dd0wney/cluso-framegraph/pkg/metrics"
	"github.com/dd0wney/cluso-framegraph/pkg/txn"
	"github.com/dd0wney/cluso-framegraph/pkg/wal"
)

// DB is an open database
type DB struct {
	cfg     *config.Config
	mgr     *txn.Manager
	types   *frame.Registry
	logger  logging.Logger
	metrics *metrics.Registry
	backup  *backup.Uploader
	health  *health.Checker
	started time.Time

	lastCheckpointSeq uint64
	lastCheckpointAt  time.Time

	logFile io.Closer
	stop    chan struct{}
	wg      sync.WaitGroup
	closed  bool
	mu      sync.Mutex
}

// Option adjusts Open
type Option func(*options)

type options struct {
	logger       logging.Logger
	metrics      *metrics.Registry
	backupClient backup.Client
	clock        func() time.Time
}

// WithLogger replaces the logger built from cfg.Logging
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records into reg instead of a fresh registry
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

// WithBackupClient uses client instead of building one from cfg.Backup
func WithBackupClient(client backup.Client) Option {
	return func(o *options) { o.backupClient = client }
}

// WithClock stamps commits with clock
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// Open recovers the database described by cfg
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db := &DB{cfg: cfg, started: time.Now(), stop: make(chan struct{})}
	db.logger = o.logger
	if db.logger == nil {
		db.logger, db.logFile = newLogger(cfg.Logging)
	}
	db.metrics = o.metrics
	if db.metrics == nil {
		db.metrics = metrics.NewRegistry()
	}

	types, err := frame.NewRegistry(cfg.Schema.Types...)
	if err != nil {
		db.closeLog()
		return nil, err
	}
	db.types = types

	journal, err := openJournal(cfg, db.logger)
	if err != nil {
		db.closeLog()
		return nil, err
	}

	db.mgr = txn.NewManager(txn.Options{
		Journal:                  journal,
		SnapshotPath:             cfg.SnapshotPath(),
		Logger:                   db.logger,
		Metrics:                  db.metrics,
		DisableConflictDetection: cfg.Transactions.DisableConflictDetection,
		Clock:                    o.clock,
	})
	recovered, err := db.mgr.Recover()
	if err != nil {
		db.mgr.Close()
		db.closeLog()
		return nil, fmt.Errorf("recovery failed: %w", err)
	}
	if err := db.applySchema(); err != nil {
		db.mgr.Close()
		db.closeLog()
		return nil, err
	}

	if cfg.Backup.Enabled {
		client := o.backupClient
		if client == nil {
			if client, err = backup.NewClient(ctx, cfg.Backup); err != nil {
				db.mgr.Close()
				db.closeLog()
				return nil, err
			}
		}
		db.backup = backup.NewUploader(client, cfg.Backup.Bucket, cfg.Backup.Prefix, db.logger, db.metrics)
	}

	db.lastCheckpointSeq, db.lastCheckpointAt = recovered.SnapshotSeq, db.started
	db.health = health.NewChecker(db.started)
	db.health.Register("store", health.StoreCheck(db.mgr))
	db.health.Register("checkpoint", health.CheckpointCheck(db.mgr, time.Duration(cfg.Checkpoint.Interval), db.lastCheckpoint))
	if db.backup != nil {
		db.health.Register("backup", health.BackupCheck(db.backup))
	}

	if interval := time.Duration(cfg.Checkpoint.Interval); interval > 0 {
		db.wg.Add(1)
		go db.checkpointLoop(interval)
	}

	stats := db.mgr.Stats()
	db.logger.Info("database opened",
		logging.Path(cfg.DataDir),
		logging.String("journal", cfg.Journal.Backend),
		logging.Seq(stats.Seq),
		logging.Int("vertices", stats.Graph.VertexCount),
		logging.Int("edges", stats.Graph.EdgeCount),
		logging.Int("indexes", len(stats.Indexes)))
	return db, nil
}

func newLogger(cfg config.LoggingConfig) (logging.Logger, io.Closer) {
	level := logging.ParseLevel(cfg.Level)
	if cfg.File == "" {
		return logging.NewJSONLogger(os.Stdout, level), nil
	}
	w := logging.NewFileWriter(logging.FileOptions{
		Path:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	return logging.NewJSONLogger(w, level), w
}

func openJournal(cfg *config.Config, logger logging.Logger) (wal.WriteAheadLog, error) {
	switch cfg.Journal.Backend {
	case config.JournalNone:
		return nil, nil
	case config.JournalBadger:
		return kvlog.Open(kvlog.Options{Dir: cfg.JournalDir(), SyncWrites: cfg.Journal.SyncWrites, Logger: logger})
	case config.JournalFile, config.JournalSnappy:
		return wal.Open(cfg.JournalDir(), wal.Options{
			Compress: cfg.Journal.Backend == config.JournalSnappy,
			NoSync:   cfg.Journal.NoSync,
			Logger:   logger,
		})
	}
	return nil, fmt.Errorf("unknown journal backend %q", cfg.Journal.Backend)
}

// applySchema declares framed property types and creates configured
// indexes that do not exist yet.
func (db *DB) applySchema() error {
	if err := db.types.Declare(db.mgr); err != nil {
		return err
	}
	existing := make(map[string]bool)
	for _, def := range db.mgr.Indexes() {
		existing[def.Name] = true
	}
	for _, def := range db.cfg.Schema.Indexes {
		name := def.Name
		if name == "" {
			name = def.DefaultName()
		}
		if existing[name] {
			continue
		}
		if _, err := db.mgr.CreateIndex(def); err != nil {
			return fmt.Errorf("index %s: %w", name, err)
		}
	}
	return nil
}

func (db *DB) checkpointLoop(interval time.Duration) {
	defer db.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := db.mgr.Seq()
	for {
		select {
		case <-db.stop:
			return
		case <-ticker.C:
			db.metrics.UpdateSystemMetrics(db.started)
			if db.mgr.Seq() == last {
				continue
			}
			info, err := db.Checkpoint(context.Background())
			if err != nil {
				db.logger.Error("scheduled checkpoint failed", logging.Error(err))
				continue
			}
			last = info.Seq
		}
	}
}

// Manager returns the transaction manager
func (db *DB) Manager() *txn.Manager { return db.mgr }

// Types returns the framed type registry
func (db *DB) Types() *frame.Registry { return db.types }

func (db *DB) Metrics() *metrics.Registry { return db.metrics }
func (db *DB) Logger() logging.Logger     { return db.logger }

// Update runs fn in a read-write transaction
func (db *DB) Update(ctx context.Context, fn func(ctx context.Context, tx *txn.Tx) error) error {
	return db.mgr.Update(ctx, fn)
}

// View runs fn in a transaction that is never committed
func (db *DB) View(ctx context.Context, fn func(ctx context.Context, tx *txn.Tx) error) error {
	return db.mgr.View(ctx, fn)
}

// Checkpoint writes a snapshot, truncates the journal and, when backups
// are enabled, uploads the snapshot.
func (db *DB) Checkpoint(ctx context.Context) (info txn.CheckpointInfo, err error) {
	timer := logging.StartTimer(db.logger, "checkpoint", logging.Bool("backup", db.backup != nil))
	defer func() {
		if err != nil {
			timer.EndError(err)
			return
		}
		timer.End()
	}()

	info, err = db.mgr.Checkpoint()
	if err != nil {
		return info, err
	}
	db.mu.Lock()
	db.lastCheckpointSeq, db.lastCheckpointAt = info.Seq, time.Now()
	db.mu.Unlock()
	if db.backup != nil {
		if _, err = db.backup.Upload(ctx, info); err != nil {
			return info, err
		}
	}
	return info, nil
}

func (db *DB) lastCheckpoint() (uint64, time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.lastCheckpointSeq, db.lastCheckpointAt
}

// Health runs the store, checkpoint and, when enabled, backup checks
func (db *DB) Health(ctx context.Context) health.Response {
	return db.health.Run(ctx)
}

// Close stops background work and closes the journal
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	close(db.stop)
	db.wg.Wait()

	err := db.mgr.Close()
	db.logger.Info("database closed", logging.Seq(db.mgr.Seq()))
	return errors.Join(err, db.closeLog())
}

func (db *DB) closeLog() error {
	if db.logFile == nil {
		return nil
	}
	return db.logFile.Close()
}

// Restore downloads the most recent uploaded checkpoint into the snapshot
// path of cfg. The database must not be open.
func Restore(ctx context.Context, cfg *config.Config, client backup.Client) (string, error) {
	if !cfg.Backup.Enabled {
		return "", errors.New("restore: backup is not enabled")
	}
	if client == nil {
		c, err := backup.NewClient(ctx, cfg.Backup)
		if err != nil {
			return "", err
		}
		client = c
	}
	u := backup.NewUploader(client, cfg.Backup.Bucket, cfg.Backup.Prefix, nil, nil)
	key, err := u.Latest(ctx)
	if err != nil {
		return "", err
	}
	if _, err := u.Download(ctx, key, cfg.SnapshotPath()); err != nil {
		return "", err
	}
	return key, nil
}
