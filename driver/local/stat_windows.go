//go:build windows

package local

import "io/fs"

// ownership is not reported on Windows: the owner lives in the security
// descriptor, not in the stat data.
func ownership(info fs.FileInfo) (owner, group string, ok bool) {
	return "", "", false
}
