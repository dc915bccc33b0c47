// Package runlog stores the results of finished pipeline runs in a bolt database.
package runlog

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/rowflow/rowflow"
	"github.com/rowflow/rowflow/keyvalue"
)

var (
	ErrNoRunExists = errors.New("no run exists")
	ErrNotOpen     = errors.New("run log is not open")
)

var (
	runsBucket = []byte("runs")
	idsBucket  = []byte("ids")
)

type Diagnostic interface {
	Error(msg string, err error, ctx ...keyvalue.T)
	StoredRun(runID string)
}

// Service is a rowflow.Reporter keeping every result it receives.
// Runs are keyed by start time so listing returns the most recent first.
type Service struct {
	c    Config
	diag Diagnostic

	mu sync.RWMutex
	db *bolt.DB
}

func NewService(c Config, d Diagnostic) *Service {
	return &Service{
		c:    c,
		diag: d,
	}
}

func (s *Service) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.c.Path), 0755); err != nil {
		return errors.Wrapf(err, "mkdir dirs %q", s.c.Path)
	}
	db, err := bolt.Open(s.c.Path, 0600, nil)
	if err != nil {
		return errors.Wrapf(err, "open boltdb @ %q", s.c.Path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(runsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(idsBucket)
		return err
	}); err != nil {
		db.Close()
		return err
	}
	s.db = db
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// runKey orders runs by start time, the run id breaks ties.
func runKey(r *rowflow.Result) []byte {
	key := make([]byte, 8, 8+len(r.RunID))
	binary.BigEndian.PutUint64(key, uint64(r.Started.UnixNano()))
	return append(key, r.RunID...)
}

// Report stores r, replacing any previous result with the same run id.
func (s *Service) Report(r *rowflow.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal result")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrNotOpen
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		runs, ids := tx.Bucket(runsBucket), tx.Bucket(idsBucket)
		if old := ids.Get([]byte(r.RunID)); old != nil {
			if err := runs.Delete(old); err != nil {
				return err
			}
		}
		key := runKey(r)
		if err := runs.Put(key, data); err != nil {
			return err
		}
		if err := ids.Put([]byte(r.RunID), key); err != nil {
			return err
		}
		return s.prune(runs, ids)
	})
	if err != nil {
		s.diag.Error("failed to store run", err, keyvalue.KV("run_id", r.RunID))
		return err
	}
	s.diag.StoredRun(r.RunID)
	return nil
}

// prune drops the oldest runs beyond the configured maximum.
func (s *Service) prune(runs, ids *bolt.Bucket) error {
	if s.c.MaxRuns <= 0 {
		return nil
	}
	// Keys are visited newest first; everything past MaxRuns is dropped.
	var drop [][]byte
	n := 0
	c := runs.Cursor()
	for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
		n++
		if n > s.c.MaxRuns {
			drop = append(drop, append([]byte(nil), k...))
		}
	}
	for _, k := range drop {
		if err := runs.Delete(k); err != nil {
			return err
		}
		if err := ids.Delete(k[8:]); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the stored result of a run.
func (s *Service) Get(runID string) (*rowflow.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrNotOpen
	}
	r := new(rowflow.Result)
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(idsBucket).Get([]byte(runID))
		if key == nil {
			return ErrNoRunExists
		}
		data := tx.Bucket(runsBucket).Get(key)
		if data == nil {
			return ErrNoRunExists
		}
		return json.Unmarshal(data, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// List returns up to limit results, most recent first. A limit <= 0 returns all runs.
// When pipeline is not empty only its runs are returned.
func (s *Service) List(pipeline string, limit int) ([]*rowflow.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrNotOpen
	}
	var results []*rowflow.Result
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			r := new(rowflow.Result)
			if err := json.Unmarshal(v, r); err != nil {
				return errors.Wrapf(err, "decode run %q", k[8:])
			}
			if pipeline != "" && r.Pipeline != pipeline {
				continue
			}
			results = append(results, r)
			if limit > 0 && len(results) == limit {
				return nil
			}
		}
		return nil
	})
	return results, err
}
