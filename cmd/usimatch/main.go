// usimatch runs a single one-vs-one match between two USI engines and
// prints the final result and kifu. It is the thin single-game counterpart
// to usiarena's parallel pool.
package main

import (
	"context"
	"flag"

	"github.com/herohde/usiarena/pkg/match"
	"github.com/herohde/usiarena/pkg/usi"
	"github.com/seekerror/build"
	"github.com/seekerror/logw"
)

var (
	engine0  = flag.String("engine0", "", "Path to the 1P engine binary")
	engine1  = flag.String("engine1", "", "Path to the 2P engine binary")
	timeStr  = flag.String("time", "byoyomi 1000", "USI time-control token string")
	sfen     = flag.String("sfen", "startpos", "Starting position, e.g. \"startpos\" or \"sfen ...\"")
	startPly = flag.Int("startply", 0, "Ply at which the starting move list (if any) is truncated")
	flipTurn = flag.Bool("flipturn", false, "If set, the 1P engine plays White instead of Black")
)

var version = build.NewVersion(1, 0, 0)

func main() {
	flag.Parse()
	ctx := context.Background()

	if *engine0 == "" || *engine1 == "" {
		logw.Exitf(ctx, "usimatch %v: -engine0 and -engine1 are required", version)
	}

	e0 := usi.NewSession(usi.WithDebugSink(func(line string) { logw.Debugf(ctx, "1P << %v", line) }))
	if err := e0.Connect(ctx, *engine0); err != nil {
		logw.Exitf(ctx, "connect 1P engine %v: %v", *engine0, err)
	}
	defer e0.Disconnect(ctx)
	if err := e0.WaitForState(ctx, usi.WaitCommand); err != nil {
		logw.Exitf(ctx, "1P engine %v handshake: %v", *engine0, err)
	}

	e1 := usi.NewSession(usi.WithDebugSink(func(line string) { logw.Debugf(ctx, "2P << %v", line) }))
	if err := e1.Connect(ctx, *engine1); err != nil {
		logw.Exitf(ctx, "connect 2P engine %v: %v", *engine1, err)
	}
	defer e1.Disconnect(ctx)
	if err := e1.WaitForState(ctx, usi.WaitCommand); err != nil {
		logw.Exitf(ctx, "2P engine %v handshake: %v", *engine1, err)
	}

	c := match.NewController(e0, e1, match.WithFlipTurn(*flipTurn))
	if err := c.SetTimeSetting(*timeStr); err != nil {
		logw.Exitf(ctx, "parse time setting %q: %v", *timeStr, err)
	}

	c.GameStart(ctx, *sfen, *startPly)
	<-c.Done()

	logw.Infof(ctx, "result: %v", c.Result())
	logw.Infof(ctx, "kifu: %v", c.Sfen())
}
