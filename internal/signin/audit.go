package signin

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AttemptRecord is one terminal flow outcome. It never carries tokens or
// nonces, only the classification of what happened.
type AttemptRecord struct {
	AttemptID    string
	Flow         FlowType
	Outcome      string
	Subject      string
	ObservedUnix int64
}

// AttemptOutcomeSuccess is recorded when a flow resolves a result.
const AttemptOutcomeSuccess = "SUCCESS"

// AttemptStore appends and lists sign-in attempt records.
type AttemptStore interface {
	Append(ctx context.Context, record AttemptRecord) error
	List(ctx context.Context, limit int) ([]AttemptRecord, error)
}

// MemoryAttemptStore keeps attempt records in memory for dev and tests.
type MemoryAttemptStore struct {
	mutex   sync.Mutex
	records []AttemptRecord
	now     func() time.Time
}

// NewMemoryAttemptStore constructs an empty in-memory attempt store.
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{now: time.Now}
}

// Append stores the record, filling the attempt id and timestamp when unset.
func (store *MemoryAttemptStore) Append(ctx context.Context, record AttemptRecord) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if record.AttemptID == "" {
		record.AttemptID = uuid.NewString()
	}
	if record.ObservedUnix == 0 {
		record.ObservedUnix = store.now().UTC().Unix()
	}
	store.records = append(store.records, record)
	return nil
}

// List returns the most recent records, newest first.
func (store *MemoryAttemptStore) List(ctx context.Context, limit int) ([]AttemptRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if limit <= 0 || limit > len(store.records) {
		limit = len(store.records)
	}
	listed := make([]AttemptRecord, 0, limit)
	for index := len(store.records) - 1; index >= len(store.records)-limit; index-- {
		listed = append(listed, store.records[index])
	}
	return listed, nil
}

type nopAttemptStore struct{}

func (nopAttemptStore) Append(ctx context.Context, record AttemptRecord) error { return nil }

func (nopAttemptStore) List(ctx context.Context, limit int) ([]AttemptRecord, error) {
	return nil, nil
}
