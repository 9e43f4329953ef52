// usiarena runs a parallel pool of USI match games between two engines,
// sampling openings from a book, alternating colors, and reporting a
// running Elo estimate. It is the thin collaborator wiring flags onto
// pkg/arena.Pool.
package main

import (
	"context"
	"flag"
	"path/filepath"
	"time"

	"github.com/herohde/usiarena/pkg/arena"
	"github.com/seekerror/build"
	"github.com/seekerror/logw"
)

var (
	enginesDir   = flag.String("engines", "", "Directory containing engine1.txt and engine2.txt engine-definition files")
	timeStr      = flag.String("time", "byoyomi 1000", "USI time-control token string")
	loops        = flag.Int("loops", 1, "Number of parallel game slots (cores)")
	iterations   = flag.Int("iterations", 0, "Total games to play before stopping; 0 runs until interrupted")
	flipTurn     = flag.Bool("flipturn", true, "Alternate colors every restarted game")
	bookFile     = flag.String("book", "", "Opening book file, one starting line per line")
	bookStartPly = flag.Int("bookstartply", 0, "Ply at which sampled book lines are truncated")
	reportEvery  = flag.Duration("reportevery", 5*time.Second, "How often to log a running Elo summary")
)

var version = build.NewVersion(1, 0, 0)

func main() {
	flag.Parse()
	ctx := context.Background()

	if *enginesDir == "" {
		logw.Exitf(ctx, "usiarena %v: -engines is required", version)
	}

	def1path := filepath.Join(*enginesDir, "engine1.txt")
	def2path := filepath.Join(*enginesDir, "engine2.txt")

	def1, err := arena.LoadEngineDef(def1path)
	if err != nil {
		logw.Exitf(ctx, "load engine1 definition: %v", err)
	}
	def2, err := arena.LoadEngineDef(def2path)
	if err != nil {
		logw.Exitf(ctx, "load engine2 definition: %v", err)
	}

	book := arena.NoBook
	if *bookFile != "" {
		b, err := arena.LoadBookFile(*bookFile)
		if err != nil {
			logw.Exitf(ctx, "load book %v: %v", *bookFile, err)
		}
		book = b
	}

	kifuLog, err := arena.NewLogWriter(*enginesDir, "kifu", arena.WithTimestamps(true))
	if err != nil {
		logw.Exitf(ctx, "create kifu log: %v", err)
	}
	defer kifuLog.Close()
	logw.Infof(ctx, "usiarena %v: logging kifus to %v", version, kifuLog.Name())

	pool := arena.NewPool(*loops,
		arena.WithFlipTurnEveryGame(*flipTurn),
		arena.WithPoolBook(book, *bookStartPly),
		arena.WithKifuLog(kifuLog),
	)
	if err := pool.InitEngine(0, def1.Exe, nil); err != nil {
		logw.Exitf(ctx, "init engine 0: %v", err)
	}
	if err := pool.InitEngine(1, def2.Exe, nil); err != nil {
		logw.Exitf(ctx, "init engine 1: %v", err)
	}
	if err := pool.SetTimeSetting(*timeStr); err != nil {
		logw.Exitf(ctx, "parse time setting %q: %v", *timeStr, err)
	}

	if err := pool.GameStart(ctx); err != nil {
		logw.Exitf(ctx, "game start: %v", err)
	}

	ticker := time.NewTicker(*reportEvery)
	defer ticker.Stop()

	for {
		<-ticker.C
		logw.Infof(ctx, "%v (%d games)", pool.GameInfo(), pool.TotalGames())
		if *iterations > 0 && pool.TotalGames() >= *iterations {
			break
		}
	}

	pool.GameStop()
	logw.Infof(ctx, "final: %v", pool.GameInfo())

	if !def1.RatingFix {
		def1.Rating = pool.GameRating().Rating
		if err := arena.SaveEngineDef(def1path, def1); err != nil {
			logw.Warningf(ctx, "save engine1 definition: %v", err)
		}
	}
}
