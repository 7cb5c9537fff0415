package archive

import (
	"io"

	"github.com/bodgit/sevenzip"
)

// 7z stores unix permissions in the high 16 bits of the attributes word.
const sevenZipUnixExtension = 0x8000

// NewSevenZipStream reads a 7z archive. password may be empty. closer, if
// non-nil, is closed with the stream.
func NewSevenZipStream(name string, ra io.ReaderAt, size int64, closer io.Closer, password string) (*Reader, error) {
	var (
		zr  *sevenzip.Reader
		err error
	)
	if password != "" {
		zr, err = sevenzip.NewReaderWithPassword(ra, size, password)
	} else {
		zr, err = sevenzip.NewReader(ra, size)
	}
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, malformed(name, err)
	}

	r := newReader(name, Format7z, closer)
	i := -1
	r.next = func() (Entry, bool, error) {
		i++
		if i >= len(zr.File) {
			return Entry{}, false, nil
		}
		return sevenZipEntry(zr.File[i]), true, nil
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

func sevenZipEntry(f *sevenzip.File) Entry {
	isDir := f.FileInfo().IsDir()
	e := Entry{
		Path:    dirPath(f.Name, isDir),
		IsDir:   isDir,
		ModTime: f.Modified,
	}
	if !isDir {
		e.Size = int64(f.UncompressedSize) //nolint:gosec
	}
	if f.Attributes&sevenZipUnixExtension != 0 {
		e.HasAttrs = true
		e.Mode = f.Mode()
	}
	return e
}
