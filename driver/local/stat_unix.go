//go:build unix

package local

import (
	"io/fs"
	"os/user"
	"strconv"
	"sync"
	"syscall"
)

var (
	userNames  sync.Map // uid -> name
	groupNames sync.Map // gid -> name
)

// ownership returns the owning user and group of a file, by name when the
// id can be resolved and numerically otherwise.
func ownership(info fs.FileInfo) (owner, group string, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", "", false
	}
	uid := strconv.FormatUint(uint64(stat.Uid), 10)
	gid := strconv.FormatUint(uint64(stat.Gid), 10)
	return lookupName(&userNames, uid, lookupUser), lookupName(&groupNames, gid, lookupGroup), true
}

func lookupName(cache *sync.Map, id string, lookup func(string) (string, error)) string {
	if name, ok := cache.Load(id); ok {
		return name.(string)
	}
	name, err := lookup(id)
	if err != nil || name == "" {
		name = id
	}
	cache.Store(id, name)
	return name
}

func lookupUser(uid string) (string, error) {
	u, err := user.LookupId(uid)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

func lookupGroup(gid string) (string, error) {
	g, err := user.LookupGroupId(gid)
	if err != nil {
		return "", err
	}
	return g.Name, nil
}
