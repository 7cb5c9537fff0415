package archivefs

import (
	"context"

	"github.com/gobeaver/panefs"
	"github.com/gobeaver/panefs/archive"
)

// Register makes r resolve archive:<container>!/<entry> locations through
// this package. cfg.ArchivePassword unlocks encrypted rar and 7z containers.
func Register(r *panefs.Registry, opts ...archive.OpenOption) {
	r.RegisterContainer(func(ctx context.Context, container panefs.File, cfg *panefs.Config) (panefs.FileSystem, error) {
		all := opts
		if cfg.ArchivePassword != "" {
			all = append([]archive.OpenOption{archive.WithPassword(cfg.ArchivePassword)}, opts...)
		}
		return New(container, all...), nil
	})
}
