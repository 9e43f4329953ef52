package match

import (
	"testing"
	"time"

	"github.com/herohde/usiarena/pkg/usi"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeSfenAppendsMovesToken(t *testing.T) {
	assert.Equal(t, "startpos moves", normalizeSfen("startpos", 0))
}

func TestNormalizeSfenTruncatesToStartPly(t *testing.T) {
	got := normalizeSfen("startpos moves 7g7f 3c3d 2g2f", 3)
	assert.Equal(t, "startpos moves 7g7f 3c3d", got)
}

func TestNormalizeSfenStartPlyBeyondLineLength(t *testing.T) {
	got := normalizeSfen("startpos moves 7g7f", 10)
	assert.Equal(t, "startpos moves 7g7f", got)
}

func TestNormalizeSfenZeroStartPlyKeepsFullLine(t *testing.T) {
	got := normalizeSfen("startpos moves 7g7f 3c3d", 0)
	assert.Equal(t, "startpos moves 7g7f 3c3d", got)
}

func TestCountMovesCountsTokensAfterMovesToken(t *testing.T) {
	assert.Equal(t, 2, countMoves("startpos moves 7g7f 3c3d"))
	assert.Equal(t, 0, countMoves("startpos"))
}

func TestElapsedQuantizedMsRoundsUpToWholeSeconds(t *testing.T) {
	assert.Equal(t, int64(1000), elapsedQuantizedMs(1200*time.Millisecond))
	assert.Equal(t, int64(0), elapsedQuantizedMs(250*time.Millisecond))
	assert.Equal(t, int64(2000), elapsedQuantizedMs(2050*time.Millisecond))
}

func TestPlayerNumberFollowsFlipTurn(t *testing.T) {
	c := NewController(nil, nil)
	assert.Equal(t, 0, c.playerNumber(usi.Black))
	assert.Equal(t, 1, c.playerNumber(usi.White))

	flipped := NewController(nil, nil, WithFlipTurn(true))
	assert.Equal(t, 1, flipped.playerNumber(usi.Black))
	assert.Equal(t, 0, flipped.playerNumber(usi.White))
}

func TestWinForAndOppositeWin(t *testing.T) {
	assert.Equal(t, BlackWin, winFor(usi.Black))
	assert.Equal(t, WhiteWin, winFor(usi.White))
	assert.Equal(t, WhiteWin, oppositeWin(usi.Black))
	assert.Equal(t, BlackWin, oppositeWin(usi.White))
}
