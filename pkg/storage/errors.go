package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIndexNotFound is returned when a queried index or mapping does
	// not exist. Mappings are created lazily on first write, so readers
	// treat this as an empty result rather than a failure.
	ErrIndexNotFound = errors.New("index not found")

	// ErrWriteConflict is returned when an optimistic-concurrency update
	// lost a version race and may be retried.
	ErrWriteConflict = errors.New("write conflict")

	ErrNotFound = errors.New("not found")

	ErrInvalidCursor = errors.New("invalid continuation cursor")
)

// BulkItemError is one failed item of a bulk call.
type BulkItemError struct {
	Index  string
	ID     string
	Reason string
}

// BulkError aggregates every failed item of a bulk call into a single
// error. Partial successes already applied are not rolled back.
type BulkError struct {
	Items []BulkItemError
}

func (e *BulkError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "bulk operation failed for %d item(s):", len(e.Items))
	for _, item := range e.Items {
		fmt.Fprintf(&b, " [%s/%s: %s]", item.Index, item.ID, item.Reason)
	}
	return b.String()
}

// Is reports write-conflict bulk failures as ErrWriteConflict so the
// bounded retry path can match them.
func (e *BulkError) Is(target error) bool {
	if target != ErrWriteConflict {
		return false
	}
	for _, item := range e.Items {
		if !strings.Contains(item.Reason, "version_conflict") && !strings.Contains(item.Reason, "conflict") {
			return false
		}
	}
	return len(e.Items) > 0
}
