package archive

import (
	"errors"
	"io"

	"github.com/nwaples/rardecode"
)

// NewRarStream reads a rar archive sequentially. password may be empty.
// rc is closed with the stream.
func NewRarStream(name string, rc io.ReadCloser, password string) (*Reader, error) {
	rr, err := rardecode.NewReader(rc, password)
	if err != nil {
		_ = rc.Close()
		return nil, malformed(name, err)
	}

	r := newReader(name, FormatRar, rc)
	r.next = func() (Entry, bool, error) {
		hdr, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return Entry{}, false, nil
		}
		if err != nil {
			return Entry{}, false, err
		}
		return rarEntry(hdr), true, nil
	}
	r.content = func() (io.Reader, error) { return rr, nil }
	return r, nil
}

func rarEntry(hdr *rardecode.FileHeader) Entry {
	e := Entry{
		Path:    dirPath(hdr.Name, hdr.IsDir),
		IsDir:   hdr.IsDir,
		ModTime: hdr.ModificationTime,
	}
	if !hdr.IsDir && !hdr.UnKnownSize {
		e.Size = hdr.UnPackedSize
	}
	if hdr.HostOS == rardecode.HostOSUnix {
		e.HasAttrs = true
		e.Mode = hdr.Mode()
	}
	return e
}
