package usi_test

import (
	"testing"

	"github.com/herohde/usiarena/pkg/usi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanner(t *testing.T) {
	s := usi.NewScanner("info depth 12 score cp 34 pv 7g7f 3c3d")

	tok, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, "info", tok)

	tok, ok = s.Get()
	require.True(t, ok)
	assert.Equal(t, "info", tok)

	tok, ok = s.Get()
	require.True(t, ok)
	assert.Equal(t, "depth", tok)

	n, ok := s.GetInt()
	require.True(t, ok)
	assert.Equal(t, 12, n)

	tok, _ = s.Get() // "score"
	assert.Equal(t, "score", tok)
	tok, _ = s.Get() // "cp"
	assert.Equal(t, "cp", tok)

	n, ok = s.GetInt()
	require.True(t, ok)
	assert.Equal(t, 34, n)

	tok, _ = s.Get()
	assert.Equal(t, "pv", tok)

	assert.False(t, s.IsEOF())
	assert.Equal(t, "7g7f 3c3d", s.RestString())
	assert.True(t, s.IsEOF())
}

func TestScannerEOF(t *testing.T) {
	s := usi.NewScanner("")
	assert.True(t, s.IsEOF())

	_, ok := s.Peek()
	assert.False(t, ok)
	_, ok = s.Get()
	assert.False(t, ok)
	_, ok = s.GetInt()
	assert.False(t, ok)
	assert.Equal(t, "", s.RestString())
}

func TestScannerGetIntBadToken(t *testing.T) {
	s := usi.NewScanner("depth foo")
	_, _ = s.Get()

	n, ok := s.GetInt()
	assert.False(t, ok)
	assert.Equal(t, 0, n)
	assert.True(t, s.IsEOF())
}
