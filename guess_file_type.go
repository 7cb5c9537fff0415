package panefs

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
)

// sniffLen is how much content http.DetectContentType looks at.
const sniffLen = 512

// Extensions the mime package resolves differently across platforms.
var extensionToMIME = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
	".json": "application/json",
	".xml":  "application/xml",
	".log":  "text/plain; charset=utf-8",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tgz":  "application/gzip",
	".tar":  "application/x-tar",
	".7z":   "application/x-7z-compressed",
	".rar":  "application/vnd.rar",
	".zst":  "application/zstd",
	".xz":   "application/x-xz",
	".bz2":  "application/x-bzip2",
	".lst":  "text/plain; charset=utf-8",
}

// GuessContentType determines a content type from the name and, when the
// extension is unknown, the first bytes of the content.
func GuessContentType(name string, head []byte) string {
	ext := strings.ToLower(path.Ext(name))
	if contentType, ok := extensionToMIME[ext]; ok {
		return contentType
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}
	if len(head) > 0 {
		return http.DetectContentType(head)
	}
	return "application/octet-stream"
}

// SniffContentType returns the backend's content type for f, or guesses it
// from the name and the first bytes.
func SniffContentType(ctx context.Context, f File) (string, error) {
	info, err := f.Stat(ctx)
	if err != nil {
		return "", err
	}
	if info.IsDir {
		return "", &PathError{Op: "sniff", Path: f.Location().Path, Err: ErrIsDir}
	}
	if info.ContentType != "" {
		return info.ContentType, nil
	}

	rc, err := f.Open(ctx)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", &PathError{Op: "sniff", Path: f.Location().Path, Err: err}
	}
	return GuessContentType(f.Name(), head[:n]), nil
}

// IsTextFile reports whether contentType is textual.
func IsTextFile(contentType string) bool {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(contentType)
	return strings.HasPrefix(contentType, "text/") ||
		contentType == "application/json" ||
		contentType == "application/xml" ||
		contentType == "application/javascript" ||
		strings.HasSuffix(contentType, "+json") ||
		strings.HasSuffix(contentType, "+xml")
}
