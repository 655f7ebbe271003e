package kvstore

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when no node exists at the requested path.
	// Callers treat this as an absent result, not a fault.
	ErrNotFound = errors.New("kvstore: node not found")

	// ErrNodeExists is returned by Create when a node already occupies the path
	ErrNodeExists = errors.New("kvstore: node already exists")
)

// DeleteResult reports whether a delete removed anything
type DeleteResult string

const (
	Deleted     DeleteResult = "deleted"
	DidNotExist DeleteResult = "did_not_exist"
)

// Store is the coordination-service surface this core consumes. Paths are
// slash-separated; intermediate segments are created implicitly. A node may
// carry an empty payload (marker node).
//
// Faults other than ErrNotFound/ErrNodeExists are backing-service errors and
// propagate to the caller unretried.
type Store interface {
	// Create writes an empty marker node; ErrNodeExists if the path is taken.
	Create(path string) error

	// CreateWithData writes a payload-carrying node; ErrNodeExists if taken.
	CreateWithData(path string, data []byte) error

	// Get returns the payload at path, or ErrNotFound.
	Get(path string) ([]byte, error)

	// SetData overwrites the payload of an existing node, or ErrNotFound.
	SetData(path string, data []byte) error

	// Delete removes the node at path, reporting whether it existed.
	Delete(path string) (DeleteResult, error)

	// ListChildren returns the direct child names under path, in store order.
	// A missing path yields an empty list.
	ListChildren(path string) ([]string, error)

	// NumChildren counts the direct children under path.
	NumChildren(path string) (int, error)

	// Exists reports whether a node occupies the path.
	Exists(path string) (bool, error)

	Close() error
}

// JoinPath builds a slash-separated path from segments
func JoinPath(segments ...string) string {
	return strings.Join(segments, "/")
}

func splitPath(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
