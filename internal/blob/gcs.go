package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
	"google.golang.org/api/googleapi"
)

// GCSStore keeps payloads in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore wraps an existing client.
func NewGCSStore(client *storage.Client, bucket, prefix string) (*GCSStore, error) {
	if client == nil {
		return nil, eris.New("blob: storage client is required")
	}
	if bucket == "" {
		return nil, eris.New("blob: bucket name is required")
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSStore) object(entityID, hash string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(Key(s.prefix, entityID, hash))
}

// Put implements Store. The write is conditional on the object not existing,
// so concurrent runs storing the same payload do not race.
func (s *GCSStore) Put(ctx context.Context, entityID, hash, contentType string, data []byte) (string, bool, error) {
	if err := checkKey(entityID, hash); err != nil {
		return "", false, err
	}
	loc := fmt.Sprintf("gs://%s/%s", s.bucket, Key(s.prefix, entityID, hash))

	w := s.object(entityID, hash).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	w.Metadata = map[string]string{"entity_id": entityID}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", false, eris.Wrapf(err, "blob: gcs write %s", loc)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return loc, false, nil
		}
		return "", false, eris.Wrapf(err, "blob: gcs close %s", loc)
	}
	return loc, true, nil
}

// Get implements Store.
func (s *GCSStore) Get(ctx context.Context, entityID, hash string) ([]byte, error) {
	r, err := s.object(entityID, hash).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "blob: gcs read %s/%s", entityID, hash)
	}
	defer r.Close() //nolint:errcheck

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: gcs read %s/%s", entityID, hash)
	}
	return data, nil
}

// Exists implements Store.
func (s *GCSStore) Exists(ctx context.Context, entityID, hash string) (bool, error) {
	_, err := s.object(entityID, hash).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "blob: gcs attrs %s/%s", entityID, hash)
	}
	return true, nil
}

// Close implements Store.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
