// Package match implements a single supervised game between two USI engine
// sessions: turn alternation, time accounting, and terminal-condition
// detection.
package match

import "github.com/herohde/usiarena/pkg/usi"

// Result is the outcome of a game, or its current lifecycle stage.
type Result int

const (
	Init Result = iota
	Playing
	BlackWin
	WhiteWin
	Draw
	MaxMoves
	IllegalMove
	StopGame
	ChildDied
)

func (r Result) String() string {
	switch r {
	case Init:
		return "Init"
	case Playing:
		return "Playing"
	case BlackWin:
		return "BlackWin"
	case WhiteWin:
		return "WhiteWin"
	case Draw:
		return "Draw"
	case MaxMoves:
		return "MaxMoves"
	case IllegalMove:
		return "IllegalMove"
	case StopGame:
		return "StopGame"
	case ChildDied:
		return "ChildDied"
	default:
		return "Unknown"
	}
}

// IsGameOver reports whether r is a terminal result.
func (r Result) IsGameOver() bool {
	return r != Init && r != Playing
}

// IsDraw reports whether r is one of the drawn outcomes.
func (r Result) IsDraw() bool {
	return r == Draw || r == MaxMoves
}

// IsPlayer1Win reports whether the 1P engine won, accounting for a color
// flip (1P played White when flip is true).
func (r Result) IsPlayer1Win(flip bool) bool {
	return (r == BlackWin && !flip) || (r == WhiteWin && flip)
}

// Kifu is a record of one completed game, appended to a Pool's ordered
// history.
type Kifu struct {
	Sfen   string
	Flip   bool
	Result Result
}

// Player1Side returns which usi.Side the 1P engine played in this game.
func (k Kifu) Player1Side() usi.Side {
	if k.Flip {
		return usi.White
	}
	return usi.Black
}
