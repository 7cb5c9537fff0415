package local

import (
	"context"

	"github.com/gobeaver/panefs"
)

// Scheme is the location scheme served by this package.
const Scheme = "file"

// Register adds the file scheme to r, rooted at cfg.LocalRoot.
func Register(r *panefs.Registry) {
	r.Register(Scheme, func(ctx context.Context, realm panefs.Location, cfg *panefs.Config) (panefs.FileSystem, error) {
		root := cfg.LocalRoot
		if root == "" {
			root = "/"
		}
		return New(root)
	})
}
