package search

// Finder walks the matches of one pattern in one source, the way a viewer's
// "find next" and "find previous" commands do.
type Finder struct {
	m    *Matcher
	src  ByteSource
	pos  int64
	last int64
}

// NewFinder creates a finder positioned at offset 0.
func NewFinder(m *Matcher, src ByteSource) *Finder {
	return &Finder{m: m, src: src, last: -1}
}

// Reset moves the caret to off and forgets the previous match.
func (f *Finder) Reset(off int64) {
	f.pos = off
	f.last = -1
}

// Last returns the offset of the most recent match.
func (f *Finder) Last() (int64, bool) {
	return f.last, f.last >= 0
}

// Next returns the first match after the previous one, or at or after the
// caret when there is none yet.
func (f *Finder) Next() (int64, bool, error) {
	from := f.pos
	if f.last >= 0 {
		from = f.last + 1
	}
	off, ok, err := f.m.Forward(f.src, from)
	if err != nil || !ok {
		return 0, false, err
	}
	f.last = off
	f.pos = off
	return off, true, nil
}

// Prev returns the closest match starting before the previous one, or
// starting at or before the caret when there is none yet.
func (f *Finder) Prev() (int64, bool, error) {
	n := int64(f.m.Len())
	from := f.pos + n - 1
	if f.last >= 0 {
		from = f.last + n - 2
	}
	if from < 0 {
		return 0, false, nil
	}
	off, ok, err := f.m.Backward(f.src, from)
	if err != nil || !ok {
		return 0, false, err
	}
	f.last = off
	f.pos = off
	return off, true, nil
}
