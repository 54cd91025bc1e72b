// Package record stores flat field maps under "<collection>:<id>" keys and
// keeps owned collections consistent with their owner index.
//
// An owned record carries its owner's id in the "userId" field and has one
// entry in the owner's index for its collection. Writes are two separate
// store calls, record first on create and update, record first on delete,
// index first on delete-all. A failure between the two leaves either an
// index entry without a record, which ListOwned skips, or a record without
// an index entry, which stays reachable by id and is restored by Repair.
package record

import (
	"errors"
	"fmt"
)

const (
	// FieldID holds the record id.
	FieldID = "id"
	// FieldOwner holds the owning user's id.
	FieldOwner = "userId"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrUnauthorized     = errors.New("record belongs to another owner")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidID        = errors.New("invalid record id")
)

// Record is a flat field map.
type Record map[string]string

func (r Record) ID() string    { return r[FieldID] }
func (r Record) Owner() string { return r[FieldOwner] }

// merge copies changes into r, leaving the id and owner fields alone.
func (r Record) merge(changes map[string]string) {
	for k, v := range changes {
		if k == FieldID || k == FieldOwner {
			continue
		}
		r[k] = v
	}
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrStoreUnavailable, op, key, err)
}
