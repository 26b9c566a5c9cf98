// Package history keeps finished run summaries in a bbolt database.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/alexisbeaulieu97/dcvprov/internal/engine"
	"github.com/alexisbeaulieu97/dcvprov/internal/logger"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
)

var (
	// runs is keyed by start time then run id so a cursor walks in
	// chronological order.
	bucketRuns = []byte("runs")
	// ids maps a run id to its key in runs.
	bucketIDs = []byte("ids")
)

// openTimeout bounds the wait for the file lock held by a concurrent run.
const openTimeout = 5 * time.Second

// DefaultRetention is how many runs a store keeps unless told otherwise.
const DefaultRetention = 100

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Store persists run summaries.
type Store struct {
	db        *bolt.DB
	retention int
}

// Option configures a Store.
type Option func(*Store)

// WithRetention keeps at most n runs, dropping the oldest first. n <= 0
// keeps everything.
func WithRetention(n int) Option {
	return func(s *Store) {
		s.retention = n
	}
}

// Open opens or creates the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketIDs} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, retention: DefaultRetention}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func runKey(summary *model.RunSummary) []byte {
	key := make([]byte, 8, 8+len(summary.RunID))
	binary.BigEndian.PutUint64(key, uint64(summary.StartedAt.UnixNano()))
	return append(key, summary.RunID...)
}

// Save records a finished run, replacing an earlier record with the same id.
func (s *Store) Save(summary *model.RunSummary) error {
	if summary == nil || summary.RunID == "" {
		return fmt.Errorf("cannot save a run without an id")
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", summary.RunID, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		ids := tx.Bucket(bucketIDs)

		if old := ids.Get([]byte(summary.RunID)); old != nil {
			if err := runs.Delete(old); err != nil {
				return err
			}
		}
		key := runKey(summary)
		if err := runs.Put(key, data); err != nil {
			return err
		}
		if err := ids.Put([]byte(summary.RunID), key); err != nil {
			return err
		}
		return s.prune(runs, ids)
	})
}

func (s *Store) prune(runs, ids *bolt.Bucket) error {
	if s.retention <= 0 {
		return nil
	}
	var keys [][]byte
	c := runs.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	if len(keys) <= s.retention {
		return nil
	}

	stale := keys[:len(keys)-s.retention]
	for _, k := range stale {
		if err := runs.Delete(k); err != nil {
			return err
		}
		if err := ids.Delete(k[8:]); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the run with the given id.
func (s *Store) Get(id string) (*model.RunSummary, error) {
	var summary *model.RunSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketIDs).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		data := tx.Bucket(bucketRuns).Get(key)
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		var err error
		summary, err = decode(data)
		return err
	})
	return summary, err
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]*model.RunSummary, error) {
	var out []*model.RunSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) == limit {
				break
			}
			summary, err := decode(v)
			if err != nil {
				return err
			}
			out = append(out, summary)
		}
		return nil
	})
	return out, err
}

func decode(data []byte) (*model.RunSummary, error) {
	var summary model.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}
	summary.Freeze()
	return &summary, nil
}

// Observer returns an engine.Observer that saves every finished run. Save
// failures are logged and never fail the run.
func (s *Store) Observer(log *logger.Logger) engine.Observer {
	return engine.ObserverFuncs{
		OnRunFinished: func(summary *model.RunSummary) {
			if summary == nil {
				return
			}
			if err := s.Save(summary); err != nil {
				log.WithField("run_id", summary.RunID).Error(err, "failed to record run history")
			}
		},
	}
}
