package archive

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// lstTimeLayout is the timestamp format written by listing tools.
const lstTimeLayout = "2006.01.02 15:04.05"

// NewLSTStream reads a plain-text listing. The first non-empty line holds
// the base directory the listing was taken from. Each following line is
//
//	name<TAB>size<TAB>date[<TAB>time...]
//
// A name ending in a slash starts a new current directory; plain file names
// are relative to the last directory seen. rc is closed with the stream.
func NewLSTStream(name string, rc io.ReadCloser) (*Reader, error) {
	r := newReader(name, FormatLST, rc)

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	var (
		base     string
		haveBase bool
		cwd      string
	)
	r.next = func() (Entry, bool, error) {
		for sc.Scan() {
			line := strings.TrimRight(sc.Text(), "\r")
			if !haveBase {
				line = strings.TrimPrefix(line, "\ufeff")
				if strings.TrimSpace(line) == "" {
					continue
				}
				base = normalizeLST(strings.TrimSpace(line))
				haveBase = true
				continue
			}
			if strings.TrimSpace(line) == "" {
				continue
			}

			e, err := parseLSTLine(line, base)
			if err != nil {
				return Entry{}, false, err
			}
			if e.IsDir {
				cwd = e.Path
			} else {
				e.Path = cwd + e.Path
			}
			return e, true, nil
		}
		if err := sc.Err(); err != nil {
			return Entry{}, false, err
		}
		return Entry{}, false, nil
	}
	return r, nil
}

func parseLSTLine(line, base string) (Entry, error) {
	fields := strings.Split(line, "\t")
	p := normalizeLST(fields[0])
	if base != "" && strings.HasPrefix(p, base) {
		p = p[len(base):]
	}
	isDir := strings.HasSuffix(p, "/")

	e := Entry{
		Path:  dirPath(p, isDir),
		IsDir: isDir,
	}
	if len(fields) > 1 && fields[1] != "" && !isDir {
		size, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("bad size %q for %s", fields[1], fields[0])
		}
		e.Size = size
	}
	if len(fields) > 2 {
		stamp := strings.Join(fields[2:], " ")
		t, err := time.ParseInLocation(lstTimeLayout, strings.TrimSpace(stamp), time.Local)
		if err != nil {
			return Entry{}, fmt.Errorf("bad timestamp %q for %s", stamp, fields[0])
		}
		e.ModTime = t
	}
	return e, nil
}

func normalizeLST(s string) string {
	return strings.ReplaceAll(s, `\`, "/")
}
