// Package search finds byte patterns in files with the Knuth-Morris-Pratt
// algorithm, forward or backward, over any source that can return a byte
// for an offset (typically a window.Window) or over a plain stream.
package search

import (
	"bufio"
	"errors"
	"io"

	"github.com/gobeaver/panefs"
	"github.com/gobeaver/panefs/window"
)

// ByteSource is a random-addressable sequence of bytes.
type ByteSource interface {
	ByteAt(off int64) (byte, error)
	Size() (int64, error)
}

// strategic is implemented by sources whose paging policy can follow the
// scan direction.
type strategic interface {
	Strategy() window.Strategy
	SetStrategy(window.Strategy)
}

// Bytes adapts an in-memory slice to ByteSource.
type Bytes []byte

func (b Bytes) ByteAt(off int64) (byte, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, panefs.ErrOutOfRange
	}
	return b[off], nil
}

func (b Bytes) Size() (int64, error) { return int64(len(b)), nil }

// Matcher holds a compiled pattern. It is immutable after construction and
// may be shared between goroutines.
type Matcher struct {
	pattern []byte
	lower   []byte
	upper   []byte
	fold    bool
	failure []int

	reversed *Matcher
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// IgnoreCase makes the matcher compare ASCII letters case-insensitively.
func IgnoreCase() MatcherOption {
	return func(m *Matcher) {
		m.fold = true
	}
}

// NewMatcher compiles pattern. The pattern is copied.
func NewMatcher(pattern []byte, opts ...MatcherOption) *Matcher {
	m := &Matcher{}
	for _, opt := range opts {
		opt(m)
	}
	m.init(append([]byte(nil), pattern...))

	rev := make([]byte, len(pattern))
	for i, b := range pattern {
		rev[len(pattern)-1-i] = b
	}
	m.reversed = &Matcher{fold: m.fold}
	m.reversed.init(rev)
	return m
}

func (m *Matcher) init(pattern []byte) {
	m.pattern = pattern
	m.lower = make([]byte, len(pattern))
	m.upper = make([]byte, len(pattern))
	for i, b := range pattern {
		if m.fold {
			m.lower[i] = toLower(b)
			m.upper[i] = toUpper(b)
		} else {
			m.lower[i] = b
			m.upper[i] = b
		}
	}
	m.failure = failureTable(len(pattern), func(i, k int) bool {
		return m.lower[i] == m.lower[k]
	})
}

// Pattern returns the pattern bytes.
func (m *Matcher) Pattern() []byte { return m.pattern }

// Len returns the pattern length.
func (m *Matcher) Len() int { return len(m.pattern) }

// Failure returns a copy of the failure table.
func (m *Matcher) Failure() []int { return append([]int(nil), m.failure...) }

// BuildFailureTable returns the KMP failure function of pattern:
// entry k is the length of the longest proper prefix of pattern[:k+1]
// that is also a suffix of it.
func BuildFailureTable(pattern []byte) []int {
	return failureTable(len(pattern), func(i, k int) bool {
		return pattern[i] == pattern[k]
	})
}

func failureTable(n int, eq func(i, k int) bool) []int {
	failure := make([]int, n)
	k := 0
	for i := 1; i < n; i++ {
		for k > 0 && !eq(i, k) {
			k = failure[k-1]
		}
		if eq(i, k) {
			k++
		}
		failure[i] = k
	}
	return failure
}

// matches reports whether b matches pattern position j.
func (m *Matcher) matches(b byte, j int) bool {
	return b == m.lower[j] || b == m.upper[j]
}

// step advances the match cursor j by one source byte and returns the new cursor.
func (m *Matcher) step(b byte, j int) int {
	for j > 0 && !m.matches(b, j) {
		j = m.failure[j-1]
	}
	if m.matches(b, j) {
		j++
	}
	return j
}

// Forward scans src at increasing offsets from from and returns the offset
// of the first match.
func (m *Matcher) Forward(src ByteSource, from int64) (int64, bool, error) {
	if len(m.pattern) == 0 {
		return 0, false, nil
	}
	size, err := src.Size()
	if err != nil {
		return 0, false, err
	}
	if from < 0 {
		from = 0
	}
	if size-from < int64(len(m.pattern)) {
		return 0, false, nil
	}

	defer withStrategy(src, window.Forward)()

	j := 0
	for i := from; i < size; i++ {
		b, err := src.ByteAt(i)
		if err != nil {
			return 0, false, err
		}
		j = m.step(b, j)
		if j == len(m.pattern) {
			return i - int64(len(m.pattern)) + 1, true, nil
		}
	}
	return 0, false, nil
}

// Backward scans src at decreasing offsets starting at from and returns
// the lowest offset of the first match found, i.e. the match closest to
// from whose last byte is at or before from.
func (m *Matcher) Backward(src ByteSource, from int64) (int64, bool, error) {
	rev := m.reversed
	if len(rev.pattern) == 0 {
		return 0, false, nil
	}
	size, err := src.Size()
	if err != nil {
		return 0, false, err
	}
	if from >= size {
		from = size - 1
	}
	if from+1 < int64(len(rev.pattern)) {
		return 0, false, nil
	}

	defer withStrategy(src, window.Backward)()

	j := 0
	for i := from; i >= 0; i-- {
		b, err := src.ByteAt(i)
		if err != nil {
			return 0, false, err
		}
		j = rev.step(b, j)
		if j == len(rev.pattern) {
			return i, true, nil
		}
	}
	return 0, false, nil
}

// ScanReader searches a sequential stream. base is the offset of the
// stream's first byte and is added to the returned offset.
func (m *Matcher) ScanReader(r io.Reader, base int64) (int64, bool, error) {
	if len(m.pattern) == 0 {
		return 0, false, nil
	}

	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}

	j := 0
	for i := base; ; i++ {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, false, nil
			}
			return 0, false, err
		}
		j = m.step(b, j)
		if j == len(m.pattern) {
			return i - int64(len(m.pattern)) + 1, true, nil
		}
	}
}

// withStrategy switches a pageable source to s and returns the restore func.
func withStrategy(src ByteSource, s window.Strategy) func() {
	st, ok := src.(strategic)
	if !ok {
		return func() {}
	}
	prev := st.Strategy()
	st.SetStrategy(s)
	return func() { st.SetStrategy(prev) }
}

func toLower(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}

func toUpper(b byte) byte {
	if 'a' <= b && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}
