// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package kvstore provides the charm's durable unit data: a namespaced
// key/value store held in a SQLite file inside the charm directory.
// Values are stored as JSON documents.
package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/canonical/sqlair"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	_ "github.com/mattn/go-sqlite3"
)

var logger = loggo.GetLogger("juju.vsphere.kvstore")

// DefaultFilename is the name of the store file within the charm directory.
const DefaultFilename = ".unit-state.db"

const ddl = `
CREATE TABLE IF NOT EXISTS kv (
    key  TEXT NOT NULL PRIMARY KEY,
    data TEXT NOT NULL
)`

type entry struct {
	Key  string `db:"key"`
	Data string `db:"data"`
}

// Store is a key/value store backed by SQLite.
type Store struct {
	db *sqlair.DB

	getStmt *sqlair.Statement
	setStmt *sqlair.Statement
}

// Open opens, creating if necessary, the store at path.
func Open(path string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Annotatef(err, "opening unit data %q", path)
	}
	// Hooks run one at a time; a single connection keeps writes serial.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(ddl); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Annotatef(err, "creating unit data schema in %q", path)
	}

	s := &Store{db: sqlair.NewDB(sqlDB)}
	if err := s.prepare(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Trace(err)
	}
	logger.Tracef("opened unit data at %q", path)
	return s, nil
}

func (s *Store) prepare() error {
	var err error
	if s.getStmt, err = sqlair.Prepare(`
SELECT &entry.*
FROM   kv
WHERE  key = $entry.key`, entry{}); err != nil {
		return errors.Annotate(err, "preparing get statement")
	}
	if s.setStmt, err = sqlair.Prepare(`
INSERT INTO kv (key, data)
VALUES ($entry.key, $entry.data)
ON CONFLICT(key) DO UPDATE SET data = excluded.data`, entry{}); err != nil {
		return errors.Annotate(err, "preparing set statement")
	}
	return nil
}

// Get unmarshals the value stored under key into out. It returns an
// error satisfying errors.NotFound if no value is stored.
func (s *Store) Get(ctx context.Context, key string, out interface{}) error {
	result := entry{Key: key}
	err := s.db.Query(ctx, s.getStmt, result).Get(&result)
	if errors.Is(err, sqlair.ErrNoRows) {
		return errors.NotFoundf("unit data %q", key)
	} else if err != nil {
		return errors.Annotatef(err, "reading unit data %q", key)
	}
	if err := json.Unmarshal([]byte(result.Data), out); err != nil {
		return errors.Annotatef(err, "decoding unit data %q", key)
	}
	return nil
}

// Set replaces the value stored under key with a single write.
func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Annotatef(err, "encoding unit data %q", key)
	}
	err = s.db.Query(ctx, s.setStmt, entry{Key: key, Data: string(data)}).Run()
	return errors.Annotatef(err, "writing unit data %q", key)
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return errors.Trace(s.db.PlainDB().Close())
}
