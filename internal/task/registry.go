package task

import (
	"context"
	"fmt"
	"sync"
)

// TaskRecord is the bookkeeping for one in-flight fire-and-forget unit.
// A record exists in the registry iff its unit is still running; on reaching
// a terminal status the record is removed under the same lock that guarded
// its insertion, so registry size is always an accurate in-flight count.
type TaskRecord struct {
	// ID is the caller-supplied identifier, unique among active records.
	ID string

	// Name is the caller-supplied display name used for observability.
	Name string

	// Status is the record's current state. Mutated only by the registry.
	Status Status

	// Result holds the unit's return value once completed. Mutually
	// exclusive with Err.
	Result any

	// Err holds the unit's terminal error, if any.
	Err error

	// cancel triggers cooperative cancellation of the associated unit.
	cancel context.CancelCauseFunc
}

// TaskRegistry is a guarded mapping of active TaskRecords. It enforces
// uniqueness of caller-supplied ids and a maximum outstanding count.
type TaskRegistry struct {
	mu             sync.Mutex
	records        map[string]*TaskRecord
	maxOutstanding int
}

// NewTaskRegistry creates a registry holding at most maxOutstanding active
// records. A ceiling below 1 is raised to 1.
func NewTaskRegistry(maxOutstanding int) *TaskRegistry {
	if maxOutstanding < 1 {
		maxOutstanding = 1
	}
	return &TaskRegistry{
		records:        make(map[string]*TaskRecord),
		maxOutstanding: maxOutstanding,
	}
}

// Insert adds a record for a unit about to start. It returns false with a
// nil error if the id is already active (duplicate submission is a no-op,
// not a failure) and ErrQueueOverflow if the registry is at capacity.
func (r *TaskRegistry) Insert(rec *TaskRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.ID]; exists {
		return false, nil
	}
	if len(r.records) >= r.maxOutstanding {
		return false, fmt.Errorf("%w: %d tasks outstanding", ErrQueueOverflow, len(r.records))
	}
	r.records[rec.ID] = rec
	return true, nil
}

// Finish records the unit's terminal outcome on its record and removes the
// record from the registry in one critical section. It returns the record,
// or nil if the id was not present.
func (r *TaskRegistry) Finish(id string, status Status, result any, err error) *TaskRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil
	}
	rec.Status = status
	rec.Result = result
	rec.Err = err
	delete(r.records, id)
	return rec
}

// Cancel triggers the cancel handle of the record with the given id,
// reporting whether such a record was found. It does not wait for the unit
// to actually stop.
func (r *TaskRegistry) Cancel(id string) bool {
	r.mu.Lock()
	rec, ok := r.records[id]
	r.mu.Unlock()

	if !ok {
		return false
	}
	rec.cancel(ErrCancelled)
	return true
}

// CancelAll triggers every active record's cancel handle.
func (r *TaskRegistry) CancelAll() {
	r.mu.Lock()
	handles := make([]context.CancelCauseFunc, 0, len(r.records))
	for _, rec := range r.records {
		handles = append(handles, rec.cancel)
	}
	r.mu.Unlock()

	for _, cancel := range handles {
		cancel(ErrCancelled)
	}
}

// Snapshot returns the set of active ids mapped to whether each unit is
// still running. Since records are removed on terminal transition, every
// present id maps to true; the shape matches the polling contract.
func (r *TaskRegistry) Snapshot() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]bool, len(r.records))
	for id, rec := range r.records {
		out[id] = rec.Status == StatusRunning
	}
	return out
}

// Len returns the number of active records.
func (r *TaskRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
