package usi

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeControl is the normalized per-side time table, in milliseconds.
type TimeControl struct {
	Time1p, Time2p       int
	Byoyomi1p, Byoyomi2p int
	Inc1p, Inc2p         int
}

var timeControlKeys = map[string]bool{
	"time": true, "time1p": true, "time2p": true,
	"byoyomi": true, "byoyomi1p": true, "byoyomi2p": true,
	"inc": true, "inc1p": true, "inc2p": true,
}

// ParseTimeControl parses a token string of key/value pairs (e.g.
// "time1p 900000 time2p 900000 byoyomi 5000") into a normalized TimeControl.
// Unsuffixed keys (time, byoyomi, inc) broadcast to both the 1p and 2p forms,
// but only for a side that was not explicitly set. Any other token fails
// with ErrBadTimeSpec.
func ParseTimeControl(tokens string) (TimeControl, error) {
	fields := strings.Fields(tokens)
	if len(fields)%2 != 0 {
		return TimeControl{}, fmt.Errorf("%w: odd number of tokens in %q", ErrBadTimeSpec, tokens)
	}

	raw := map[string]int{}
	for i := 0; i < len(fields); i += 2 {
		key := fields[i]
		if !timeControlKeys[key] {
			return TimeControl{}, fmt.Errorf("%w: unrecognized key %q", ErrBadTimeSpec, key)
		}
		n, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return TimeControl{}, fmt.Errorf("%w: bad value for %q: %v", ErrBadTimeSpec, key, err)
		}
		if _, dup := raw[key]; dup {
			return TimeControl{}, fmt.Errorf("%w: duplicate key %q", ErrBadTimeSpec, key)
		}
		raw[key] = n
	}

	var tc TimeControl
	broadcast := func(base string, p1, p2 *int) {
		if v, ok := raw[base+"1p"]; ok {
			*p1 = v
		} else if v, ok := raw[base]; ok {
			*p1 = v
		}
		if v, ok := raw[base+"2p"]; ok {
			*p2 = v
		} else if v, ok := raw[base]; ok {
			*p2 = v
		}
	}
	broadcast("time", &tc.Time1p, &tc.Time2p)
	broadcast("byoyomi", &tc.Byoyomi1p, &tc.Byoyomi2p)
	broadcast("inc", &tc.Inc1p, &tc.Inc2p)

	return tc, nil
}
