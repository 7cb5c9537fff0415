package panefs

import (
	"context"
	"crypto/md5"  //nolint:gosec // MD5 used for checksum verification, not security
	"crypto/sha1" //nolint:gosec // SHA1 used for checksum verification, not security
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// NewHasher creates a new hash.Hash for the given algorithm.
// Returns an error if the algorithm is not supported.
func NewHasher(algorithm ChecksumAlgorithm) (hash.Hash, error) {
	switch algorithm {
	case ChecksumMD5:
		return md5.New(), nil //nolint:gosec // MD5 used for checksum verification, not security
	case ChecksumSHA1:
		return sha1.New(), nil //nolint:gosec // SHA1 used for checksum verification, not security
	case ChecksumSHA256:
		return sha256.New(), nil
	case ChecksumSHA512:
		return sha512.New(), nil
	case ChecksumCRC32:
		return crc32.NewIEEE(), nil
	case ChecksumXXHash:
		return xxhash.New(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported checksum algorithm: %s", ErrNotSupported, algorithm)
	}
}

// CalculateChecksum reads from the reader and calculates the checksum using
// the specified algorithm. Returns the hex-encoded checksum string.
func CalculateChecksum(r io.Reader, algorithm ChecksumAlgorithm) (string, error) {
	sums, err := CalculateChecksums(r, []ChecksumAlgorithm{algorithm})
	if err != nil {
		return "", err
	}
	return sums[algorithm], nil
}

// CalculateChecksums reads from the reader once and calculates every
// requested checksum. Returns a map of algorithm to hex-encoded checksum.
func CalculateChecksums(r io.Reader, algorithms []ChecksumAlgorithm) (map[ChecksumAlgorithm]string, error) {
	if len(algorithms) == 0 {
		return nil, fmt.Errorf("no algorithms specified")
	}

	hashers := make(map[ChecksumAlgorithm]hash.Hash, len(algorithms))
	writers := make([]io.Writer, 0, len(algorithms))

	for _, algo := range algorithms {
		h, err := NewHasher(algo)
		if err != nil {
			return nil, err
		}
		hashers[algo] = h
		writers = append(writers, h)
	}

	if _, err := io.Copy(io.MultiWriter(writers...), r); err != nil {
		return nil, fmt.Errorf("failed to calculate checksums: %w", err)
	}

	results := make(map[ChecksumAlgorithm]string, len(algorithms))
	for algo, h := range hashers {
		results[algo] = hex.EncodeToString(h.Sum(nil))
	}
	return results, nil
}

// Checksum returns the hex checksum of f's content. A backend implementing
// CanChecksum computes it natively; otherwise the content is streamed.
func Checksum(ctx context.Context, f File, algorithm ChecksumAlgorithm) (string, error) {
	if cs, ok := f.FileSystem().(CanChecksum); ok {
		sum, err := cs.Checksum(ctx, f.Location().Path, algorithm)
		if err == nil || !IsUnsupported(err) {
			return sum, err
		}
	}

	sums, err := Checksums(ctx, f, []ChecksumAlgorithm{algorithm})
	if err != nil {
		return "", err
	}
	return sums[algorithm], nil
}

// Checksums streams f once and returns every requested checksum.
func Checksums(ctx context.Context, f File, algorithms []ChecksumAlgorithm) (map[ChecksumAlgorithm]string, error) {
	rc, err := f.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return CalculateChecksums(rc, algorithms)
}

// VerifyChecksum reports whether f's checksum equals expected, ignoring
// hex case.
func VerifyChecksum(ctx context.Context, f File, expected string, algorithm ChecksumAlgorithm) (bool, error) {
	actual, err := Checksum(ctx, f, algorithm)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, expected), nil
}
