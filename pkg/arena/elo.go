package arena

import (
	"fmt"
	"math"
)

// zAlpha05 is the one-sided z-score for a 95% confidence bound (alpha =
// 0.05). Reproduced as-is from the rating formula this package implements.
const zAlpha05 = 1.644854

// ratingClamp bounds the degenerate rating point estimate at r = 0 or r = 1.
const ratingClamp = 9999

// EloStats is the aggregate win/loss/draw tally for a pool run, plus the
// derived Elo rating-point estimate and its one-sided 95% confidence bound.
type EloStats struct {
	Player1Win int
	Player2Win int
	BlackWin   int
	WhiteWin   int
	Draws      int

	WinRate      float64
	BlackWinRate float64
	WhiteWinRate float64

	Rating      float64
	RatingLower float64
	RatingUpper float64
}

// ComputeElo derives an EloStats from the raw aggregate counters. Draws are
// excluded from the rating computation (N = p1win + p2win), per the
// reference formula; the total game count for the per-color rates is
// p1win + p2win + draws.
func ComputeElo(p1win, p2win, blackWin, whiteWin, draws int) EloStats {
	s := EloStats{
		Player1Win: p1win,
		Player2Win: p2win,
		BlackWin:   blackWin,
		WhiteWin:   whiteWin,
		Draws:      draws,
	}

	total := p1win + p2win + draws
	if total > 0 {
		s.BlackWinRate = float64(blackWin) / float64(total)
		s.WhiteWinRate = float64(whiteWin) / float64(total)
	}

	n := p1win + p2win
	if n <= 0 {
		return s
	}

	r := float64(p1win) / float64(n)
	s.WinRate = r
	s.Rating = ratingPoint(r)
	s.RatingLower = ratingPoint(eloP0(r, n))
	s.RatingUpper = -ratingPoint(eloP0(1-r, n))
	return s
}

// Pretty renders the stats the way a pool's game_info collaborator would:
// a short Elo summary plus per-color win rates.
func (s EloStats) Pretty() string {
	return fmt.Sprintf("Elo %.1f [%.1f, %.1f] from %d/%d wins (%.1f%%); black %.1f%%, white %.1f%%, draws %d",
		s.Rating, s.RatingLower, s.RatingUpper, s.Player1Win, s.Player1Win+s.Player2Win, 100*s.WinRate,
		100*s.BlackWinRate, 100*s.WhiteWinRate, s.Draws)
}

// ratingPoint converts a win rate into an Elo rating-point estimate,
// clamping the degenerate endpoints rather than returning +-Inf.
func ratingPoint(r float64) float64 {
	switch {
	case r <= 0:
		return -ratingClamp
	case r >= 1:
		return ratingClamp
	default:
		return -400 * math.Log10(1/r-1)
	}
}

// eloP0 solves the normal-approximation hypothesis-test inequality for the
// one-sided confidence bound at observed rate r over n decisive games.
func eloP0(r float64, n int) float64 {
	a := zAlpha05
	N := float64(n)

	inner := a*a*a*a - 4*a*a*N*r*r + 4*a*a*N*r
	if inner < 0 {
		inner = 0
	}
	return (a*a - math.Sqrt(inner) + 2*N*r) / (2 * (a*a + N))
}
