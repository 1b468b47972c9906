package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const fireLeaseBucket = "fire_leases"

// SchedulerLedger is a small, unencrypted bbolt file separate from the
// main content database. It records one lease per in-flight queue entry
// fire: (entry_id -> entry_id, claimed_at). The scheduler's poll loop and
// its worker pool both read the main Store for truth, but a crash
// mid-dispatch can leave an entry marked "publishing" there without ever
// reaching the platform; the ledger lets a restarted process tell a
// stale claim (worth re-firing) from a fresh one (still within its
// dispatch timeout, worth leaving alone).
type SchedulerLedger struct {
	db *bolt.DB
}

// OpenSchedulerLedger opens or creates the ledger file at path.
func OpenSchedulerLedger(path string) (*SchedulerLedger, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("scheduler ledger: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(fireLeaseBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("scheduler ledger: create bucket: %w", err)
	}
	return &SchedulerLedger{db: db}, nil
}

func (l *SchedulerLedger) Close() error { return l.db.Close() }

// FireLease is the record held while a queue entry is being dispatched.
type FireLease struct {
	EntryID   string    `json:"entry_id"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// Claim records that this process has started dispatching entryID. Call
// Release once the fire completes (success or failure) so the lease
// doesn't outlive the attempt.
func (l *SchedulerLedger) Claim(entryID string) error {
	lease := FireLease{EntryID: entryID, ClaimedAt: time.Now().UTC()}
	data, err := json.Marshal(lease)
	if err != nil {
		return fmt.Errorf("scheduler ledger: marshal lease: %w", err)
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(fireLeaseBucket)).Put([]byte(entryID), data)
	})
}

// Release removes entryID's lease.
func (l *SchedulerLedger) Release(entryID string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(fireLeaseBucket)).Delete([]byte(entryID))
	})
}

// Stale reports whether entryID holds a lease older than maxAge, or no
// lease at all (not stale, nothing to reclaim). A stale lease means the
// process that claimed it died mid-dispatch and the entry is safe to
// re-fire despite still showing "publishing" in the main store.
func (l *SchedulerLedger) Stale(entryID string, maxAge time.Duration) (bool, error) {
	var lease *FireLease
	err := l.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(fireLeaseBucket)).Get([]byte(entryID))
		if data == nil {
			return nil
		}
		var parsed FireLease
		if err := json.Unmarshal(data, &parsed); err != nil {
			return err
		}
		lease = &parsed
		return nil
	})
	if err != nil {
		return false, err
	}
	if lease == nil {
		return false, nil
	}
	return time.Since(lease.ClaimedAt) > maxAge, nil
}
