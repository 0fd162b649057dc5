// Package buildstore persists the state of build executions so that work
// interrupted by a restart can be found again.
//
// Records live in a single BoltDB bucket keyed by "<project>/<sha>" with JSON
// values. A build is recorded as pending when it is set up, moves to running
// when the runner picks it up, and ends as succeeded or failed. Anything still
// pending or running when the process starts again is reported by
// PendingSHAs.
package buildstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"ciwarden/pkg/logging"
)

const (
	dbFileName   = "builds.db"
	buildsBucket = "builds"
	openTimeout  = time.Second
	keySeparator = "/"
	dataDirPerms = 0o755
	dbFilePerms  = 0o600
)

// State is the recorded lifecycle state of a build.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Unfinished reports whether a build in this state was never completed.
func (s State) Unfinished() bool {
	return s == StatePending || s == StateRunning
}

// Record is the persisted view of one build execution.
type Record struct {
	ProjectID string    `json:"projectId"`
	SHA       string    `json:"sha"`
	State     State     `json:"state"`
	Fork      bool      `json:"fork,omitempty"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is a BoltDB backed build status datastore.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

// Open opens (creating if needed) the datastore under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, dataDirPerms); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	path := filepath.Join(dataDir, dbFileName)
	db, err := bolt.Open(path, dbFilePerms, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("opening %s: timeout (another ciwarden instance may be running)", path)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	s, err := NewWithDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logging.Debug("BuildStore", "Opened %s", path)
	return s, nil
}

// NewWithDB wraps an already open database.
func NewWithDB(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(buildsBucket)); err != nil {
			return fmt.Errorf("creating %q bucket: %w", buildsBucket, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, bucket: []byte(buildsBucket)}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(projectID, sha string) []byte {
	return []byte(projectID + keySeparator + sha)
}

// Record stores the state of (projectID, sha), overwriting the previous record.
func (s *Store) Record(rec Record) error {
	if rec.ProjectID == "" || rec.SHA == "" {
		return fmt.Errorf("record requires project and sha")
	}
	if strings.Contains(rec.ProjectID, keySeparator) {
		return fmt.Errorf("project id %q must not contain %q", rec.ProjectID, keySeparator)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(recordKey(rec.ProjectID, rec.SHA), data)
	})
	if err != nil {
		return fmt.Errorf("DB transaction failed: %w", err)
	}
	logging.Debug("BuildStore", "Recorded %s/%s as %s", rec.ProjectID, rec.SHA, rec.State)
	return nil
}

// Get returns the record for (projectID, sha).
func (s *Store) Get(projectID, sha string) (Record, bool, error) {
	var rec Record
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(s.bucket).Get(recordKey(projectID, sha))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return Record{}, false, fmt.Errorf("reading %s/%s: %w", projectID, sha, err)
	}
	return rec, found, nil
}

// List returns every record of projectID, or of all projects when projectID is
// empty.
func (s *Store) List(projectID string) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()

		var k, v []byte
		prefix := []byte(nil)
		if projectID != "" {
			prefix = []byte(projectID + keySeparator)
			k, v = c.Seek(prefix)
		} else {
			k, v = c.First()
		}

		for ; k != nil; k, v = c.Next() {
			if prefix != nil && !strings.HasPrefix(string(k), string(prefix)) {
				break
			}
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to deserialize record at key %q: %w", string(k), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// PendingSHAs returns, sorted, the shas of projectID whose builds are recorded
// as pending or running.
func (s *Store) PendingSHAs(ctx context.Context, projectID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := s.List(projectID)
	if err != nil {
		return nil, err
	}

	var shas []string
	for _, rec := range records {
		if rec.State.Unfinished() {
			shas = append(shas, rec.SHA)
		}
	}
	sort.Strings(shas)
	return shas, nil
}
