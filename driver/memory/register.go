package memory

import (
	"context"

	"github.com/gobeaver/panefs"
)

// Scheme is the location scheme served by this package.
const Scheme = "mem"

// Register adds the mem scheme to r. Every realm (mem://<name>) gets its own
// empty tree, kept for the lifetime of the registry.
func Register(r *panefs.Registry) {
	r.Register(Scheme, func(ctx context.Context, realm panefs.Location, cfg *panefs.Config) (panefs.FileSystem, error) {
		return New(), nil
	})
}
