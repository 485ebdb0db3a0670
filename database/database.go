// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package database provides persistent storage for the custody core.
// Structured records (requests, closures, locks, roles, instance state)
// live in a SQLite metadata store via GORM; sparse short-lived commitment
// records live in a Badger key-value store. Both run in-memory when no
// data directory is configured, which is the mode used by tests.
package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/blinklabs-io/coffer/database/models"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

type Config struct {
	Logger  *slog.Logger
	DataDir string
	// Tracing enables OpenTelemetry tracing of metadata store queries
	Tracing bool
}

type Database struct {
	logger      *slog.Logger
	metadata    *gorm.DB
	commitments *badger.DB
	dataDir     string
}

// New creates a database instance with optional persistence using the
// provided data directory
func New(cfg *Config) (*Database, error) {
	db := &Database{
		logger:  cfg.Logger,
		dataDir: cfg.DataDir,
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if err := db.openMetadata(cfg.Tracing); err != nil {
		return nil, err
	}
	if err := db.openCommitments(); err != nil {
		return nil, err
	}
	return db, nil
}

func (d *Database) openMetadata(enableTracing bool) error {
	var metadataDb *gorm.DB
	var err error
	if d.dataDir == "" {
		// Use in-memory database when no data directory is specified,
		// useful for testing. cache=shared allows multiple connections to
		// share the same in-memory database
		metadataDb, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(d.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(d.dataDir, fs.ModePerm); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		metadataDbPath := filepath.Join(d.dataDir, "metadata.sqlite")
		// WAL journal mode, disable sync on write
		metadataConnOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)"
		metadataDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf("file:%s?%s", metadataDbPath, metadataConnOpts),
			),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return err
		}
	}
	if enableTracing {
		if err := metadataDb.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return err
		}
	}
	// Create table schemas
	for _, model := range models.MigrateModels {
		d.logger.Debug(
			fmt.Sprintf("creating table: %#v", model),
			"component", "database",
		)
		if err := metadataDb.AutoMigrate(model); err != nil {
			return err
		}
	}
	d.metadata = metadataDb
	return nil
}

func (d *Database) openCommitments() error {
	badgerOpts := badger.DefaultOptions(
		filepath.Join(d.dataDir, "commitments"),
	).
		WithLogger(newBadgerLogger(d.logger)).
		WithSyncWrites(false)
	if d.dataDir == "" {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").
			WithValueDir("")
	}
	commitmentsDb, err := badger.Open(badgerOpts)
	if err != nil {
		return fmt.Errorf("failed to open commitment store: %w", err)
	}
	d.commitments = commitmentsDb
	return nil
}

// Metadata returns the underlying metadata store handle
func (d *Database) Metadata() *gorm.DB {
	return d.metadata
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	if d.metadata != nil {
		if sqlDb, sqlErr := d.metadata.DB(); sqlErr == nil {
			err = errors.Join(err, sqlDb.Close())
		}
	}
	if d.commitments != nil {
		err = errors.Join(err, d.commitments.Close())
	}
	return err
}
