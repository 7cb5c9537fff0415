package panefs

import (
	"context"
	"strings"
	"testing"
)

func TestCalculateChecksum(t *testing.T) {
	tests := []struct {
		algorithm ChecksumAlgorithm
		want      string
	}{
		{ChecksumMD5, "5eb63bbbe01eeed093cb22bb8f5acdc3"},
		{ChecksumSHA1, "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"},
		{ChecksumSHA256, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{ChecksumCRC32, "0d4a1185"},
		{ChecksumXXHash, "45ab6734b21e6968"},
	}
	for _, tt := range tests {
		t.Run(string(tt.algorithm), func(t *testing.T) {
			got, err := CalculateChecksum(strings.NewReader("hello world"), tt.algorithm)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCalculateChecksumsErrors(t *testing.T) {
	if _, err := CalculateChecksums(strings.NewReader("x"), nil); err == nil {
		t.Error("expected an error without algorithms")
	}
	if _, err := NewHasher("crc64"); !IsUnsupported(err) {
		t.Errorf("unknown algorithm: %v", err)
	}
}

func TestChecksumStreamsWithoutBackendSupport(t *testing.T) {
	ctx := context.Background()
	fsys := newMockFS("mock")
	fsys.put("/a.txt", "hello world")
	f := mockFile(fsys, "h", "/a.txt")

	sum, err := Checksum(ctx, f, ChecksumMD5)
	if err != nil || sum != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("Checksum() = %s, %v", sum, err)
	}

	sums, err := Checksums(ctx, f, []ChecksumAlgorithm{ChecksumMD5, ChecksumCRC32})
	if err != nil {
		t.Fatal(err)
	}
	if sums[ChecksumCRC32] != "0d4a1185" || len(sums) != 2 {
		t.Errorf("Checksums() = %v", sums)
	}

	ok, err := VerifyChecksum(ctx, f, "5EB63BBBE01EEED093CB22BB8F5ACDC3", ChecksumMD5)
	if err != nil || !ok {
		t.Errorf("VerifyChecksum() = %v, %v", ok, err)
	}
	ok, _ = VerifyChecksum(ctx, f, "00", ChecksumMD5)
	if ok {
		t.Error("VerifyChecksum should reject a wrong sum")
	}
}
