// Package clientrepo implements contracts.ClientRepository: a narrow,
// read-only view onto per-client cadence rules, platform account
// identities, and opaque guardrail blobs. The core treats all of this as
// configuration it consumes but never owns or writes back.
package clientrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/NomadonaTrip/sophia/pkg/models"
)

// clientRecord is one client's entry in the backing config file.
type clientRecord struct {
	Cadence          models.Cadence         `json:"cadence"`
	PlatformAccounts models.PlatformAccounts `json:"platform_accounts"`
	Guardrails       json.RawMessage        `json:"guardrails,omitempty"`
}

// Repository loads client configuration from a JSON file on disk and
// serves it from memory. It is read-only from the core's perspective;
// Reload re-reads the file so an operator can update config without a
// restart.
type Repository struct {
	mu      sync.RWMutex
	path    string
	records map[string]clientRecord
}

// New loads path once and returns a ready Repository. An empty path
// yields a Repository with no clients configured — every lookup returns
// ErrClientNotFound, which callers degrade out of gracefully (e.g.
// enforceCadence treats a missing cadence as "no constraint").
func New(path string) (*Repository, error) {
	r := &Repository{path: path, records: map[string]clientRecord{}}
	if path == "" {
		return r, nil
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the backing file from disk.
func (r *Repository) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("clientrepo: read %s: %w", r.path, err)
	}
	var records map[string]clientRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("clientrepo: parse %s: %w", r.path, err)
	}

	r.mu.Lock()
	r.records = records
	r.mu.Unlock()
	return nil
}

// ErrClientNotFound is returned when no configuration exists for a client.
type ErrClientNotFound struct{ ClientID string }

func (e *ErrClientNotFound) Error() string {
	return fmt.Sprintf("clientrepo: no configuration for client %q", e.ClientID)
}

func (r *Repository) lookup(clientID string) (clientRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[clientID]
	if !ok {
		return clientRecord{}, &ErrClientNotFound{ClientID: clientID}
	}
	return rec, nil
}

func (r *Repository) GetCadence(ctx context.Context, clientID string) (*models.Cadence, error) {
	rec, err := r.lookup(clientID)
	if err != nil {
		return nil, err
	}
	cadence := rec.Cadence
	return &cadence, nil
}

func (r *Repository) GetPlatformAccounts(ctx context.Context, clientID string) (*models.PlatformAccounts, error) {
	rec, err := r.lookup(clientID)
	if err != nil {
		return nil, err
	}
	accounts := rec.PlatformAccounts
	return &accounts, nil
}

func (r *Repository) GetGuardrails(ctx context.Context, clientID string) ([]byte, error) {
	rec, err := r.lookup(clientID)
	if err != nil {
		return nil, err
	}
	return []byte(rec.Guardrails), nil
}
