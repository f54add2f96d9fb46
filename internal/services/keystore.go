package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"licensegate/pkg/contracts/domain"
)

// ErrKeyNotFound is returned by KeyStore.Lookup for unknown license keys.
var ErrKeyNotFound = errors.New("license key not found")

// ErrNoFreeSlot is returned by KeyStore.BindDevice when every device slot on
// the license is already taken by another device.
var ErrNoFreeSlot = errors.New("no free device slot")

// LicenseRecord is the license state the issuer needs. It deliberately
// covers only the fields the protocol reads; the full license row lives in
// the external persistence layer.
type LicenseRecord struct {
	Key        string
	AppCode    string
	Status     domain.LicenseStatus
	ExpiresAt  time.Time
	MaxDevices int
	Tier       string
	Devices    []string
}

// BoundTo reports whether deviceID already occupies a slot.
func (r *LicenseRecord) BoundTo(deviceID string) bool {
	for _, d := range r.Devices {
		if d == deviceID {
			return true
		}
	}
	return false
}

// KeyStore abstracts the license persistence consulted during issuance.
type KeyStore interface {
	// Lookup returns the record for key, or ErrKeyNotFound.
	Lookup(ctx context.Context, key string) (*LicenseRecord, error)

	// BindDevice records deviceID against key when a slot is free, or
	// returns ErrNoFreeSlot. Idempotent for an already-bound device. The
	// slot check and the bind must be atomic within the store; a caller
	// working from a Lookup snapshot cannot enforce the limit itself.
	BindDevice(ctx context.Context, key, deviceID string) error
}

// MemoryKeyStore is a mutex-guarded in-memory KeyStore for tests and
// single-binary deployments.
type MemoryKeyStore struct {
	mu      sync.RWMutex
	records map[string]*LicenseRecord
}

// NewMemoryKeyStore creates an empty store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{records: make(map[string]*LicenseRecord)}
}

// Put inserts or replaces a record.
func (s *MemoryKeyStore) Put(rec *LicenseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.Devices = append([]string(nil), rec.Devices...)
	s.records[rec.Key] = &cp
}

// Lookup implements KeyStore.
func (s *MemoryKeyStore) Lookup(_ context.Context, key string) (*LicenseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := *rec
	cp.Devices = append([]string(nil), rec.Devices...)
	return &cp, nil
}

// BindDevice implements KeyStore.
func (s *MemoryKeyStore) BindDevice(_ context.Context, key, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return ErrKeyNotFound
	}
	if rec.BoundTo(deviceID) {
		return nil
	}
	if len(rec.Devices) >= rec.MaxDevices {
		return ErrNoFreeSlot
	}
	rec.Devices = append(rec.Devices, deviceID)
	return nil
}
