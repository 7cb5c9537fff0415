package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/gobeaver/panefs"
)

// Scheme is the location scheme served by this package: gs://bucket/key.
const Scheme = "gs"

// Register adds the gs scheme to r. Without a configured credentials file
// the client uses GOOGLE_APPLICATION_CREDENTIALS or default credentials.
func Register(r *panefs.Registry) {
	r.Register(Scheme, func(ctx context.Context, realm panefs.Location, cfg *panefs.Config) (panefs.FileSystem, error) {
		if realm.Host == "" {
			return nil, fmt.Errorf("%w: gs location needs a bucket", panefs.ErrInvalidName)
		}

		var opts []option.ClientOption
		if cfg.GCSCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
		}
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return New(client, realm.Host), nil
	})
}
