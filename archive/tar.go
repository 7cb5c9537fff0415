package archive

import (
	"archive/tar"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// NewTarStream reads a tar archive, decompressing it first when format is
// one of the compressed tar variants. rc is closed with the stream.
func NewTarStream(name string, rc io.ReadCloser, format Format) (*Reader, error) {
	r := newReader(name, format, rc)

	src, err := decompressor(rc, format)
	if err != nil {
		_ = r.Close()
		return nil, malformed(name, err)
	}
	if c, ok := src.(io.Closer); ok && format != FormatTar {
		r.addCloser(c)
	}

	tr := tar.NewReader(src)
	r.next = func() (Entry, bool, error) {
		for {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				return Entry{}, false, nil
			}
			if err != nil {
				return Entry{}, false, err
			}
			switch hdr.Typeflag {
			case tar.TypeXGlobalHeader, tar.TypeGNULongName, tar.TypeGNULongLink:
				continue
			}
			return tarEntry(hdr), true, nil
		}
	}
	r.content = func() (io.Reader, error) { return tr, nil }
	return r, nil
}

func decompressor(rc io.Reader, format Format) (io.Reader, error) {
	switch format {
	case FormatTar:
		return rc, nil
	case FormatTarGzip:
		return gzip.NewReader(rc)
	case FormatTarBzip2:
		return bzip2.NewReader(rc), nil
	case FormatTarZstd:
		d, err := zstd.NewReader(rc)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	case FormatTarXz:
		return xz.NewReader(rc)
	default:
		return nil, fmt.Errorf("not a tar format: %s", format)
	}
}

func tarEntry(hdr *tar.Header) Entry {
	isDir := hdr.Typeflag == tar.TypeDir
	e := Entry{
		Path:     dirPath(hdr.Name, isDir),
		IsDir:    isDir,
		ModTime:  hdr.ModTime,
		Size:     hdr.Size,
		HasAttrs: true,
		Mode:     hdr.FileInfo().Mode(),
		Owner:    hdr.Uname,
		Group:    hdr.Gname,
	}
	if e.Owner == "" {
		e.Owner = strconv.Itoa(hdr.Uid)
	}
	if e.Group == "" {
		e.Group = strconv.Itoa(hdr.Gid)
	}
	if isDir {
		e.Size = 0
	}
	return e
}
