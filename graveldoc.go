// Package graveldoc is an embedded document store that accounts for document
// sizes the way Convex does, on top of an LSM-tree key-value engine.
//
// Documents are value.Object maps. Each one is stored with two system fields,
// "_id" and "_creationTime", and must fit within the configured size and
// nesting limits, measured with value.DocumentSize.
//
// Example usage:
//
//	db, err := graveldoc.Open("/path/to/database", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	id, err := db.Insert("users", value.Object{"name": value.String("ada")})
//	if err != nil {
//		log.Printf("Insert failed: %v", err)
//	}
//
//	doc, exists, err := db.Get("users", id)
//	if err == nil && exists {
//		fmt.Println(doc["name"])
//	}
package graveldoc

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MikhailWahib/graveldoc/internal/config"
	"github.com/MikhailWahib/graveldoc/internal/document"
	"github.com/MikhailWahib/graveldoc/internal/engine"
	"github.com/MikhailWahib/graveldoc/internal/logging"
	"github.com/MikhailWahib/graveldoc/internal/storage"
	"github.com/MikhailWahib/graveldoc/internal/usage"
	"github.com/MikhailWahib/graveldoc/value"
)

// Config is an alias for config.Config, re-exported for user convenience.
type Config = config.Config

// DefaultConfig returns a Config struct populated with default values. Re-exported for user convenience.
var DefaultConfig = config.DefaultConfig

// LoadConfig reads a YAML config file. Re-exported for user convenience.
var LoadConfig = config.Load

// UsageSnapshot is the per-table usage returned by DB.Usage.
type UsageSnapshot = usage.Snapshot

// Errors returned by DB operations.
var (
	ErrNotFound         = document.ErrNotFound
	ErrDocumentTooLarge = document.ErrDocumentTooLarge
	ErrNestingTooDeep   = document.ErrNestingTooDeep
	ErrInvalidFieldName = document.ErrInvalidFieldName
	ErrInvalidTableName = document.ErrInvalidTableName
	ErrInvalidString    = document.ErrInvalidString
	ErrSystemField      = document.ErrSystemField
	ErrInvalidID        = document.ErrInvalidID
	ErrClosed           = engine.ErrClosed
)

// DB represents a thread-safe graveldoc instance.
type DB struct {
	engine *engine.Engine
	limits document.Limits
	usage  *usage.Tracker
	log    zerolog.Logger

	// writeMu serializes read-modify-write operations.
	writeMu sync.Mutex
}

// Open opens or creates a database at the specified path.
//
// The directory will be created if it doesn't exist. A nil cfg uses
// DefaultConfig; zero fields of a non-nil cfg take their default values.
func Open(path string, cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	} else {
		c := *cfg
		cfg = &c
		cfg.FillDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	e, err := engine.Open(path, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &DB{
		engine: e,
		limits: document.Limits{
			MaxDocumentSize: cfg.MaxDocumentSize,
			MaxNestingDepth: cfg.MaxNestingDepth,
		},
		usage: usage.NewTracker(),
		log:   logger,
	}, nil
}

// Insert stores a new document in table and returns its generated id.
// Absent fields are dropped; fields starting with "_" are rejected.
func (db *DB) Insert(table string, fields value.Object) (string, error) {
	if err := document.ValidateTableName(table); err != nil {
		return "", err
	}
	if err := document.ValidateUserFields(fields); err != nil {
		return "", err
	}

	id := document.NewID()
	if err := db.put(table, document.New(id, time.Now(), fields)); err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the document with the given id.
func (db *DB) Get(table, id string) (value.Object, bool, error) {
	if err := document.ValidateTableName(table); err != nil {
		return nil, false, err
	}
	if err := document.ValidateID(id); err != nil {
		return nil, false, err
	}
	return db.get(table, id)
}

// Replace overwrites the user fields of an existing document, keeping its
// system fields.
func (db *DB) Replace(table, id string, fields value.Object) error {
	if err := document.ValidateUserFields(fields); err != nil {
		return err
	}
	return db.update(table, id, func(doc value.Object) value.Object {
		return document.Merge(systemFields(doc), fields)
	})
}

// Patch merges fields into an existing document. A field set to
// value.Absent is removed.
func (db *DB) Patch(table, id string, fields value.Object) error {
	if err := document.ValidateUserFields(fields); err != nil {
		return err
	}
	return db.update(table, id, func(doc value.Object) value.Object {
		return document.Merge(doc, fields)
	})
}

// Delete removes the document with the given id.
func (db *DB) Delete(table, id string) error {
	if err := document.ValidateTableName(table); err != nil {
		return err
	}
	if err := document.ValidateID(id); err != nil {
		return err
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, found, err := db.engine.Get(document.Key(table, id))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}

	if err := db.engine.Delete(document.Key(table, id)); err != nil {
		return err
	}
	db.usage.DocumentWritten(table)
	return nil
}

// Scan returns every document in table, ordered by id.
func (db *DB) Scan(table string) ([]value.Object, error) {
	if err := document.ValidateTableName(table); err != nil {
		return nil, err
	}

	entries, err := db.engine.Scan(document.TablePrefix(table))
	if err != nil {
		return nil, err
	}

	docs := make([]value.Object, 0, len(entries))
	for _, entry := range entries {
		doc, err := document.Decode(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", entry.Key, err)
		}
		if err := db.recordRead(table, doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Usage returns the bytes read and written per table since Open.
func (db *DB) Usage() UsageSnapshot {
	return db.usage.Snapshot()
}

// MetricsHandler serves the usage counters in the Prometheus exposition format.
func (db *DB) MetricsHandler() http.Handler {
	return db.usage.Handler()
}

// Flush writes buffered documents to disk.
func (db *DB) Flush() error {
	return db.engine.Flush()
}

// Close gracefully shuts down the database. Buffered writes stay in the
// write-ahead log and are recovered by the next Open.
func (db *DB) Close() error {
	return db.engine.Close()
}

func (db *DB) get(table, id string) (value.Object, bool, error) {
	data, found, err := db.engine.Get(document.Key(table, id))
	if err != nil || !found {
		return nil, false, err
	}

	doc, err := document.Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s/%s: %w", table, id, err)
	}
	if err := db.recordRead(table, doc); err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (db *DB) update(table, id string, apply func(value.Object) value.Object) error {
	if err := document.ValidateTableName(table); err != nil {
		return err
	}
	if err := document.ValidateID(id); err != nil {
		return err
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	doc, found, err := db.get(table, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	return db.put(table, apply(doc))
}

// put checks and stores a complete document.
func (db *DB) put(table string, doc value.Object) error {
	size, err := document.Check(doc, db.limits)
	if err != nil {
		return err
	}

	data, err := document.Encode(doc, storage.MaxFieldLength)
	if err != nil {
		return err
	}

	id := string(doc[value.IDField].(value.String))
	if err := db.engine.Set(document.Key(table, id), data); err != nil {
		return err
	}

	db.usage.BytesWritten(table, size)
	db.usage.DocumentWritten(table)
	db.log.Debug().Str("table", table).Str("id", id).Int("size", size).Msg("document written")
	return nil
}

func (db *DB) recordRead(table string, doc value.Object) error {
	size, err := value.DocumentSize(doc, nil)
	if err != nil {
		return err
	}
	db.usage.BytesRead(table, size)
	return nil
}

func systemFields(doc value.Object) value.Object {
	return value.Object{
		value.IDField:           doc[value.IDField],
		value.CreationTimeField: doc[value.CreationTimeField],
	}
}
