// Package blob stores raw fetched payloads keyed by entity and content hash.
// Writing the same (entityID, hash) twice is a no-op.
package blob

import (
	"context"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when no payload exists for a key.
var ErrNotFound = eris.New("blob: not found")

// Store persists raw payloads.
type Store interface {
	// Put stores data under (entityID, hash) and returns its location. It
	// reports created=false when the payload already existed.
	Put(ctx context.Context, entityID, hash, contentType string, data []byte) (location string, created bool, err error)
	Get(ctx context.Context, entityID, hash string) ([]byte, error)
	Exists(ctx context.Context, entityID, hash string) (bool, error)
	Close() error
}

// Key returns the object path for (entityID, hash) under prefix.
func Key(prefix, entityID, hash string) string {
	return path.Join(strings.Trim(prefix, "/"), entityID, hash)
}

func checkKey(entityID, hash string) error {
	if strings.TrimSpace(entityID) == "" {
		return eris.New("blob: entity id is required")
	}
	if strings.TrimSpace(hash) == "" {
		return eris.New("blob: hash is required")
	}
	if strings.ContainsAny(entityID+hash, "/\\") {
		return eris.Errorf("blob: invalid key %s/%s", entityID, hash)
	}
	return nil
}
