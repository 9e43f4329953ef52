package usi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/seekerror/stdlib/pkg/lang"
)

// ThinkPV is one principal-variation line reported by an "info" record.
// Every field but MultiPV and PV is optional: an engine is free to omit any
// of them on a given line.
type ThinkPV struct {
	Depth    lang.Optional[int]
	SelDepth lang.Optional[int]
	Nodes    lang.Optional[int]
	Nps      lang.Optional[int]
	Time     lang.Optional[int]
	HashFull lang.Optional[int]
	Score    lang.Optional[Score]
	Bound    Bound
	MultiPV  int    // 1-based, defaults to 1
	PV       string // whitespace-joined move tokens
}

func (pv ThinkPV) String() string {
	var parts []string
	if d, ok := pv.Depth.V(); ok {
		parts = append(parts, fmt.Sprintf("depth %d", d))
	}
	if s, ok := pv.Score.V(); ok {
		parts = append(parts, fmt.Sprintf("score %v", s))
	}
	if pv.PV != "" {
		parts = append(parts, fmt.Sprintf("pv %v", pv.PV))
	}
	return strings.Join(parts, " ")
}

// ThinkResult is the accumulated outcome of a single "go" cycle: zero or
// more info records culminating in exactly one bestmove.
type ThinkResult struct {
	BestMove   string // "none" if the engine reported fewer than 2 tokens
	PonderMove string // empty if not given
	PVs        []*ThinkPV
}

// setPV stores pv at 1-based index multipv, growing PVs with nil
// placeholders as needed. The most recently observed PV at a given index
// replaces any earlier one.
func (t *ThinkResult) setPV(multipv int, pv *ThinkPV) {
	if multipv < 1 {
		multipv = 1
	}
	for len(t.PVs) < multipv {
		t.PVs = append(t.PVs, nil)
	}
	t.PVs[multipv-1] = pv
}

// parseInfo parses the tokens following a leading "info" token into a
// ThinkPV. Returns an error if the record is malformed; callers log and
// drop such records without killing the session.
func parseInfo(s *Scanner) (*ThinkPV, int, error) {
	pv := &ThinkPV{MultiPV: 1}
	multipv := 1

	for !s.IsEOF() {
		key, ok := s.Get()
		if !ok {
			break
		}

		switch key {
		case "depth":
			n, ok := s.GetInt()
			if !ok {
				return nil, 0, fmt.Errorf("info: bad depth")
			}
			pv.Depth = lang.Some(n)
		case "seldepth":
			n, ok := s.GetInt()
			if !ok {
				return nil, 0, fmt.Errorf("info: bad seldepth")
			}
			pv.SelDepth = lang.Some(n)
		case "nodes":
			n, ok := s.GetInt()
			if !ok {
				return nil, 0, fmt.Errorf("info: bad nodes")
			}
			pv.Nodes = lang.Some(n)
		case "nps":
			n, ok := s.GetInt()
			if !ok {
				return nil, 0, fmt.Errorf("info: bad nps")
			}
			pv.Nps = lang.Some(n)
		case "time":
			n, ok := s.GetInt()
			if !ok {
				return nil, 0, fmt.Errorf("info: bad time")
			}
			pv.Time = lang.Some(n)
		case "hashfull":
			n, ok := s.GetInt()
			if !ok {
				return nil, 0, fmt.Errorf("info: bad hashfull")
			}
			pv.HashFull = lang.Some(n)
		case "multipv":
			n, ok := s.GetInt()
			if !ok {
				return nil, 0, fmt.Errorf("info: bad multipv")
			}
			multipv = n
			pv.MultiPV = n
		case "score":
			sc, bound, err := parseScore(s)
			if err != nil {
				return nil, 0, err
			}
			pv.Score = lang.Some(sc)
			pv.Bound = bound
		case "string":
			s.RestString() // rest of line is a free-form comment
		case "pv":
			pv.PV = s.RestString()
			return pv, multipv, nil
		default:
			// Unrecognized key: best-effort skip one value token, if any,
			// so later recognized keys on the same line still parse.
			_, _ = s.Get()
		}
	}
	return pv, multipv, nil
}

func parseScore(s *Scanner) (Score, Bound, error) {
	kind, ok := s.Get()
	if !ok {
		return 0, Exact, fmt.Errorf("info: missing score kind")
	}

	var sc Score
	switch kind {
	case "cp":
		n, ok := s.GetInt()
		if !ok {
			return 0, Exact, fmt.Errorf("info: bad score cp")
		}
		sc = Score(n)
	case "mate":
		tok, ok := s.Get()
		if !ok {
			return 0, Exact, fmt.Errorf("info: bad score mate")
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			return 0, Exact, fmt.Errorf("info: bad score mate: %w", err)
		}
		if strings.HasPrefix(tok, "-") {
			// A leading '-' (including "-0") means "being mated in |n| plies".
			sc = Mated(-n)
		} else {
			sc = Mate(n)
		}
	default:
		return 0, Exact, fmt.Errorf("info: unrecognized score kind %q", kind)
	}

	bound := Exact
	if next, ok := s.Peek(); ok {
		switch next {
		case "upperbound":
			bound = UpperBound
			_, _ = s.Get()
		case "lowerbound":
			bound = LowerBound
			_, _ = s.Get()
		}
	}
	return sc, bound, nil
}

// parseBestmove parses the tokens following a leading "bestmove" token.
func parseBestmove(s *Scanner) (best, ponder string) {
	best = "none"
	if tok, ok := s.Get(); ok {
		best = tok
	} else {
		return
	}
	if tok, ok := s.Get(); ok && tok == "ponder" {
		if p, ok := s.Get(); ok {
			ponder = p
		}
	}
	return
}
