package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinder(t *testing.T) {
	src := Bytes("xx ab xx ab xx ab")
	f := NewFinder(NewMatcher([]byte("ab")), src)

	var forward []int64
	for {
		off, ok, err := f.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		forward = append(forward, off)
	}
	assert.Equal(t, []int64{3, 9, 15}, forward)

	last, ok := f.Last()
	require.True(t, ok)
	assert.Equal(t, int64(15), last)

	var backward []int64
	for {
		off, ok, err := f.Prev()
		require.NoError(t, err)
		if !ok {
			break
		}
		backward = append(backward, off)
	}
	assert.Equal(t, []int64{9, 3}, backward)
}

func TestFinderReset(t *testing.T) {
	src := Bytes("ab ab ab")
	f := NewFinder(NewMatcher([]byte("ab")), src)

	f.Reset(4)
	off, ok, err := f.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(6), off)

	f.Reset(4)
	off, ok, err = f.Prev()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), off)
}
