package panefs

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// ArchiveScheme is the scheme of locations that point inside a container
// file, written as "archive:<container-url>!/<entry-path>".
const ArchiveScheme = "archive"

// Location identifies a file on some backend: scheme, authority and an
// absolute slash-separated path. Path is always cleaned and starts with "/".
type Location struct {
	Scheme   string
	User     string
	Password string
	Host     string
	Port     int
	Path     string

	// Container is the location string of the archive holding this entry.
	// Only set for the archive scheme.
	Container string
}

// ParseLocation parses a location URL. A string without a scheme is taken
// as a local path.
func ParseLocation(raw string) (Location, error) {
	if raw == "" {
		return Location{}, &PathError{Op: "parse", Path: raw, Err: ErrInvalidName}
	}

	if rest, ok := strings.CutPrefix(raw, ArchiveScheme+":"); ok {
		container, inner, found := strings.Cut(rest, "!")
		if !found || container == "" {
			return Location{}, &PathError{Op: "parse", Path: raw, Err: fmt.Errorf("%w: missing '!' separator", ErrInvalidName)}
		}
		if _, err := ParseLocation(container); err != nil {
			return Location{}, err
		}
		return Location{Scheme: ArchiveScheme, Container: container, Path: cleanPath(inner)}, nil
	}

	if !strings.Contains(raw, "://") {
		return Location{Scheme: "file", Path: cleanPath(strings.ReplaceAll(raw, `\`, "/"))}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, &PathError{Op: "parse", Path: raw, Err: err}
	}

	loc := Location{
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Hostname(),
		Path:   cleanPath(u.Path),
	}
	if p := u.Port(); p != "" {
		loc.Port, err = strconv.Atoi(p)
		if err != nil {
			return Location{}, &PathError{Op: "parse", Path: raw, Err: err}
		}
	}
	if u.User != nil {
		loc.User = u.User.Username()
		loc.Password, _ = u.User.Password()
	}
	return loc, nil
}

// MustParseLocation is like ParseLocation but panics on error.
func MustParseLocation(raw string) Location {
	loc, err := ParseLocation(raw)
	if err != nil {
		panic(err)
	}
	return loc
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

func (l Location) url() *url.URL {
	u := &url.URL{Scheme: l.Scheme, Path: l.Path}
	if l.Host != "" {
		u.Host = l.Host
		if l.Port != 0 {
			u.Host = net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
		}
	}
	if l.User != "" {
		if l.Password != "" {
			u.User = url.UserPassword(l.User, l.Password)
		} else {
			u.User = url.User(l.User)
		}
	}
	return u
}

// String returns the location as a URL, credentials included.
func (l Location) String() string {
	if l.Scheme == ArchiveScheme {
		return ArchiveScheme + ":" + l.Container + "!" + l.Path
	}
	return l.url().String()
}

// Redacted is like String but masks the password.
func (l Location) Redacted() string {
	if l.Scheme == ArchiveScheme {
		c, err := ParseLocation(l.Container)
		if err != nil {
			return ArchiveScheme + ":?!" + l.Path
		}
		return ArchiveScheme + ":" + c.Redacted() + "!" + l.Path
	}
	return l.url().Redacted()
}

// Realm returns the root of the location's backend: same scheme, authority
// and credentials with the path reset to "/".
func (l Location) Realm() Location {
	r := l
	r.Path = "/"
	return r
}

// RealmKey is a string that is equal for two locations iff they share a realm.
// Passwords are part of the key so that different logins do not share a session.
func (l Location) RealmKey() string {
	return l.Realm().String()
}

// SameRealm reports whether l and o live on the same backend instance.
func (l Location) SameRealm(o Location) bool {
	return l.Scheme == o.Scheme &&
		l.Host == o.Host &&
		l.Port == o.Port &&
		l.User == o.User &&
		l.Container == o.Container
}

// IsRoot reports whether the location is its realm's root.
func (l Location) IsRoot() bool {
	return l.Path == "/" || l.Path == ""
}

// Parent returns the location of the containing directory. It reports false
// for a realm root.
func (l Location) Parent() (Location, bool) {
	if l.IsRoot() {
		return Location{}, false
	}
	p := l
	p.Path = path.Dir(l.Path)
	return p, true
}

// Join returns a child location.
func (l Location) Join(elem ...string) Location {
	c := l
	c.Path = cleanPath(path.Join(append([]string{l.Path}, elem...)...))
	return c
}

// Base returns the last path element, or "/" for a root.
func (l Location) Base() string {
	return path.Base(l.Path)
}

// RelPath returns the path without its leading slash, the form backends use.
func (l Location) RelPath() string {
	return strings.TrimPrefix(l.Path, "/")
}
