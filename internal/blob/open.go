package blob

import (
	"context"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/config"
)

// Open returns the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		path := cfg.SQLitePath
		if path == "" {
			path = "grantwatch-blobs.db"
		}
		return NewSQLiteStore(ctx, path)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, eris.New("blob: bucket name is required")
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "blob: gcs client")
		}
		zap.L().Info("blob: using gcs", zap.String("bucket", cfg.Bucket), zap.String("prefix", cfg.Prefix))
		return NewGCSStore(client, cfg.Bucket, cfg.Prefix)
	default:
		return nil, eris.Errorf("blob: unknown backend %q", cfg.Backend)
	}
}
