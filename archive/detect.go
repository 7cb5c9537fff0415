package archive

import (
	"bytes"
	"fmt"
	"path"
	"strings"
)

// Format identifies a container format.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTar
	FormatTarGzip
	FormatTarBzip2
	FormatTarZstd
	FormatTarXz
	FormatRar
	Format7z
	FormatLST
)

var formatNames = map[Format]string{
	FormatUnknown:  "unknown",
	FormatZip:      "zip",
	FormatTar:      "tar",
	FormatTarGzip:  "tar.gz",
	FormatTarBzip2: "tar.bz2",
	FormatTarZstd:  "tar.zst",
	FormatTarXz:    "tar.xz",
	FormatRar:      "rar",
	Format7z:       "7z",
	FormatLST:      "lst",
}

func (f Format) String() string {
	return formatNames[f]
}

// ParseFormat returns the format named by s, as printed by Format.String.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimPrefix(s, "."))
	for f, name := range formatNames {
		if f != FormatUnknown && name == s {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unknown archive format %q", s)
}

// NeedsRandomAccess reports whether the format's directory lives at the end
// of the file, so that reading requires an io.ReaderAt.
func (f Format) NeedsRandomAccess() bool {
	return f == FormatZip || f == Format7z
}

// HeadSize is the number of leading bytes Detect looks at.
const HeadSize = 512

type magicSignature struct {
	format Format
	offset int
	magic  []byte
}

var magicSignatures = []magicSignature{
	{FormatZip, 0, []byte("PK\x03\x04")},
	{FormatZip, 0, []byte("PK\x05\x06")}, // empty archive
	{FormatRar, 0, []byte("Rar!\x1a\x07")},
	{Format7z, 0, []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}},
	{FormatTarGzip, 0, []byte{0x1f, 0x8b}},
	{FormatTarBzip2, 0, []byte("BZh")},
	{FormatTarZstd, 0, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{FormatTarXz, 0, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{FormatTar, 257, []byte("ustar")},
}

var extensions = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGzip},
	{".tgz", FormatTarGzip},
	{".tar.bz2", FormatTarBzip2},
	{".tbz2", FormatTarBzip2},
	{".tar.zst", FormatTarZstd},
	{".tzst", FormatTarZstd},
	{".tar.xz", FormatTarXz},
	{".txz", FormatTarXz},
	{".tar", FormatTar},
	{".zip", FormatZip},
	{".jar", FormatZip},
	{".rar", FormatRar},
	{".7z", Format7z},
	{".lst", FormatLST},
}

// Detect identifies a container by its leading bytes, falling back to the
// file name's extension. LST listings are plain text and only recognized
// by extension.
func Detect(name string, head []byte) Format {
	for _, sig := range magicSignatures {
		end := sig.offset + len(sig.magic)
		if len(head) >= end && bytes.Equal(head[sig.offset:end], sig.magic) {
			return sig.format
		}
	}
	return DetectByName(name)
}

// DetectByName identifies a container by its file name alone.
func DetectByName(name string) Format {
	lower := strings.ToLower(path.Base(name))
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext.suffix) {
			return ext.format
		}
	}
	return FormatUnknown
}
