package archive

import (
	"archive/zip"
	"io"
	"strings"
)

const zipCreatorUnix = 3

// NewZipStream reads a zip archive. The central directory is parsed up
// front by archive/zip; entries are then handed out one at a time.
// closer, if non-nil, is closed with the stream.
func NewZipStream(name string, ra io.ReaderAt, size int64, closer io.Closer) (*Reader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, malformed(name, err)
	}

	r := newReader(name, FormatZip, closer)
	i := -1
	r.next = func() (Entry, bool, error) {
		i++
		if i >= len(zr.File) {
			return Entry{}, false, nil
		}
		return zipEntry(zr.File[i]), true, nil
	}
	r.content = func() (io.Reader, error) {
		if i < 0 || i >= len(zr.File) {
			return nil, io.EOF
		}
		rc, err := zr.File[i].Open()
		if err != nil {
			return nil, classify(name, err)
		}
		r.setContent(rc)
		return rc, nil
	}
	return r, nil
}

func zipEntry(f *zip.File) Entry {
	isDir := strings.HasSuffix(f.Name, "/") || f.Mode().IsDir()
	e := Entry{
		Path:    dirPath(f.Name, isDir),
		IsDir:   isDir,
		ModTime: f.Modified,
		Size:    int64(f.UncompressedSize64),
	}
	if isDir {
		e.Size = 0
	}
	// Only archives made on unix carry meaningful permission bits.
	if f.CreatorVersion>>8 == zipCreatorUnix {
		e.HasAttrs = true
		e.Mode = f.Mode()
	}
	return e
}
