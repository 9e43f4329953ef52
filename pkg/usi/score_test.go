package usi_test

import (
	"testing"

	"github.com/herohde/usiarena/pkg/usi"
	"github.com/stretchr/testify/assert"
)

func TestScoreMateRoundTrip(t *testing.T) {
	for k := 0; k <= 256; k++ {
		mate := usi.MateConst - usi.Score(k)
		assert.True(t, mate.IsMateScore(), "k=%d", k)
		got, ok := mate.MateDistance()
		assert.True(t, ok)
		assert.Equal(t, k, got)

		mated := -usi.MateConst + usi.Score(k)
		assert.True(t, mated.IsMatedScore(), "k=%d", k)
		got, ok = mated.MateDistance()
		assert.True(t, ok)
		assert.Equal(t, k, got)
	}
}

func TestScoreCentipawnIsNotMate(t *testing.T) {
	s := usi.Score(215)
	assert.False(t, s.IsMateScore())
	assert.False(t, s.IsMatedScore())
	_, ok := s.MateDistance()
	assert.False(t, ok)
}

func TestScoreString(t *testing.T) {
	assert.Equal(t, "cp 215", usi.Score(215).String())
	assert.Equal(t, "mate 3", usi.Mate(3).String())
	assert.Equal(t, "mate -3", usi.Mated(3).String())
}
