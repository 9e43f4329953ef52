package arena

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/herohde/usiarena/pkg/match"
	"github.com/herohde/usiarena/pkg/usi"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/util/iox"
)

// Pool supervises N parallel Match Controllers playing the same engine pair
// repeatedly: it restarts each finished game with a fresh book opening,
// optionally alternating colors, and aggregates results into running
// win/draw/loss counters plus an Elo estimate.
type Pool struct {
	iox.AsyncCloser

	n                 int
	flipTurnEveryGame bool
	moveCap           int
	book              Book
	bookStartPly      int
	kifuLog           *LogWriter

	mu      sync.Mutex
	ctx     context.Context
	paths   [2]string
	options [2]map[string]string
	tc      string

	engines     [][2]*usi.Session
	controllers []*match.Controller
	flips       []bool
	folded      []bool

	totalGames int
	player1Win int
	player2Win int
	blackWin   int
	whiteWin   int
	drawGames  int
	kifus      []match.Kifu

	rngMu sync.Mutex
	rng   *rand.Rand

	pulse *iox.Pulse
	wg    sync.WaitGroup
}

// PoolOption configures a Pool at construction.
type PoolOption func(*Pool)

// WithFlipTurnEveryGame alternates each slot's color assignment every time
// its game restarts, in addition to staggering initial assignment across
// slots.
func WithFlipTurnEveryGame(enabled bool) PoolOption {
	return func(p *Pool) {
		p.flipTurnEveryGame = enabled
	}
}

// WithPoolMoveCap overrides match.DefaultMoveCap for every controller the
// pool creates.
func WithPoolMoveCap(n int) PoolOption {
	return func(p *Pool) {
		p.moveCap = n
	}
}

// WithPoolBook sets the opening book and the ply at which sampled lines are
// truncated when starting a game.
func WithPoolBook(b Book, startPly int) PoolOption {
	return func(p *Pool) {
		p.book = b
		p.bookStartPly = startPly
	}
}

// WithRandSource overrides the default random source used for opening
// sampling, primarily for deterministic tests. Color staggering does not use
// it: it alternates by slot index.
func WithRandSource(rng *rand.Rand) PoolOption {
	return func(p *Pool) {
		p.rng = rng
	}
}

// WithKifuLog appends one line per completed game to w. The Pool never
// closes w; the caller owns its lifecycle.
func WithKifuLog(w *LogWriter) PoolOption {
	return func(p *Pool) {
		p.kifuLog = w
	}
}

// NewPool creates a pool of n parallel match slots (init_server(N) in the
// reference terminology).
func NewPool(n int, opts ...PoolOption) *Pool {
	p := &Pool{
		AsyncCloser: iox.NewAsyncCloser(),
		n:           n,
		moveCap:     match.DefaultMoveCap,
		book:        NoBook,
		rng:         rand.New(rand.NewSource(1)),
		pulse:       iox.NewPulse(),
	}
	for _, fn := range opts {
		fn(p)
	}
	return p
}

// InitEngine configures the binary and options for engine slot 0 or 1,
// shared by every one of the n parallel games.
func (p *Pool) InitEngine(slot int, path string, options map[string]string) error {
	if slot != 0 && slot != 1 {
		return fmt.Errorf("match: engine slot must be 0 or 1, got %d", slot)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths[slot] = path
	p.options[slot] = options
	return nil
}

// SetTimeSetting parses tokens and applies them to every controller the
// pool creates (present and future).
func (p *Pool) SetTimeSetting(tokens string) error {
	if _, err := usi.ParseTimeControl(tokens); err != nil {
		return err
	}

	p.mu.Lock()
	p.tc = tokens
	p.mu.Unlock()
	return nil
}

// GameStart connects both engine slots for each of the n games, starts them
// from a sampled opening, and launches the 1 Hz supervisor.
func (p *Pool) GameStart(ctx context.Context) error {
	p.mu.Lock()
	path0, path1 := p.paths[0], p.paths[1]
	opts0, opts1 := p.options[0], p.options[1]
	p.ctx = ctx
	p.mu.Unlock()

	if path0 == "" || path1 == "" {
		return fmt.Errorf("match: both engine slots must be initialized before game_start")
	}

	engines := make([][2]*usi.Session, p.n)
	controllers := make([]*match.Controller, p.n)
	flips := make([]bool, p.n)
	folded := make([]bool, p.n)

	for i := 0; i < p.n; i++ {
		e0 := usi.NewSession()
		e0.SetOptions(opts0)
		if err := e0.Connect(ctx, path0); err != nil {
			return fmt.Errorf("match: connect slot %d engine 0: %w", i, err)
		}
		if err := e0.WaitForState(ctx, usi.WaitCommand); err != nil {
			return fmt.Errorf("match: slot %d engine 0 handshake: %w", i, err)
		}

		e1 := usi.NewSession()
		e1.SetOptions(opts1)
		if err := e1.Connect(ctx, path1); err != nil {
			return fmt.Errorf("match: connect slot %d engine 1: %w", i, err)
		}
		if err := e1.WaitForState(ctx, usi.WaitCommand); err != nil {
			return fmt.Errorf("match: slot %d engine 1 handshake: %w", i, err)
		}

		flip := p.flipTurnEveryGame && i%2 == 1

		c, err := p.newController(e0, e1, flip)
		if err != nil {
			return err
		}

		sfen, startPly := p.sampleOpening()
		c.GameStart(ctx, sfen, startPly)
		p.wakeOnDone(c)

		engines[i] = [2]*usi.Session{e0, e1}
		controllers[i] = c
		flips[i] = flip
	}

	p.mu.Lock()
	p.engines = engines
	p.controllers = controllers
	p.flips = flips
	p.folded = folded
	p.mu.Unlock()

	p.wg.Add(1)
	go p.supervise(ctx)
	return nil
}

func (p *Pool) newController(e0, e1 *usi.Session, flip bool) (*match.Controller, error) {
	c := match.NewController(e0, e1, match.WithFlipTurn(flip), match.WithMoveCap(p.moveCap))

	p.mu.Lock()
	tc := p.tc
	p.mu.Unlock()

	if tc != "" {
		if err := c.SetTimeSetting(tc); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (p *Pool) sampleOpening() (string, int) {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()

	line, ok := p.book.Sample(p.rng)
	if !ok {
		return "startpos", 0
	}
	return line.String(), p.bookStartPly
}

// GameStop stops the supervisor, then requests every controller stop at its
// next turn boundary, and waits for all games to reach a terminal result.
func (p *Pool) GameStop() {
	p.Close()
	p.wg.Wait()

	p.mu.Lock()
	controllers := append([]*match.Controller{}, p.controllers...)
	ctx := p.ctx
	p.mu.Unlock()

	for _, c := range controllers {
		c.Terminate()
	}

	for i, c := range controllers {
		<-c.Done()

		p.mu.Lock()
		already := p.folded[i]
		p.mu.Unlock()

		if !already {
			p.foldResult(ctx, i, c)
		}
	}
}

// supervise wakes on whichever comes first: the 1s safety-net ticker, or a
// pulse emitted by wakeOnDone the moment some slot's game actually finishes.
// The pulse coalesces bursts (several slots finishing in the same instant
// collapse into one wakeup) instead of queuing a poll per completion.
func (p *Pool) supervise(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pollOnce(ctx)
		case <-p.pulse.Chan():
			p.pollOnce(ctx)
		case <-p.Closed():
			return
		}
	}
}

// wakeOnDone emits a pulse once c finishes, so supervise does not have to
// wait for the next ticker tick to fold and restart it. One-shot: exits as
// soon as c.Done() fires, so it never spins on an already-closed channel
// across a slot's later restarts.
func (p *Pool) wakeOnDone(c *match.Controller) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case <-c.Done():
			p.pulse.Emit()
		case <-p.Closed():
		}
	}()
}

func (p *Pool) pollOnce(ctx context.Context) {
	p.mu.Lock()
	controllers := append([]*match.Controller{}, p.controllers...)
	p.mu.Unlock()

	for i, c := range controllers {
		select {
		case <-c.Done():
		default:
			continue
		}

		p.mu.Lock()
		already := p.folded[i]
		p.mu.Unlock()
		if already {
			continue
		}

		p.foldResult(ctx, i, c)

		select {
		case <-p.Closed():
			continue
		default:
		}

		p.mu.Lock()
		if p.flipTurnEveryGame {
			p.flips[i] = !p.flips[i]
		}
		flip := p.flips[i]
		e0, e1 := p.engines[i][0], p.engines[i][1]
		p.mu.Unlock()

		next, err := p.newController(e0, e1, flip)
		if err != nil {
			logw.Warningf(ctx, "match: slot %d restart failed: %v", i, err)
			continue
		}

		sfen, startPly := p.sampleOpening()
		next.GameStart(ctx, sfen, startPly)
		p.wakeOnDone(next)

		p.mu.Lock()
		p.controllers[i] = next
		p.folded[i] = false
		p.mu.Unlock()
	}
}

func (p *Pool) foldResult(ctx context.Context, i int, c *match.Controller) {
	result := c.Result()

	p.mu.Lock()
	flip := p.flips[i]
	p.folded[i] = true
	if result == match.StopGame {
		// A game cut short by GameStop has no outcome: it is not counted,
		// recorded as a kifu, or written to the kifu log.
		p.mu.Unlock()
		logw.Infof(ctx, "match: slot %d stopped, not counted", i)
		return
	}
	kifu := match.Kifu{Sfen: c.Sfen(), Flip: flip, Result: result}
	p.kifus = append(p.kifus, kifu)
	p.totalGames++

	switch {
	case result.IsDraw():
		p.drawGames++
	case result.IsPlayer1Win(flip):
		p.player1Win++
	case result == match.BlackWin || result == match.WhiteWin:
		p.player2Win++
	}
	if result == match.BlackWin {
		p.blackWin++
	} else if result == match.WhiteWin {
		p.whiteWin++
	}
	p.mu.Unlock()

	if p.kifuLog != nil {
		if err := p.kifuLog.Write(fmt.Sprintf("slot=%d flip=%v result=%v sfen=%v", i, flip, result, kifu.Sfen)); err != nil {
			logw.Warningf(ctx, "match: kifu log write failed: %v", err)
		}
	}

	logw.Infof(ctx, "match: slot %d finished, result=%v", i, result)
}

// TotalGames returns the number of completed games folded into the tally.
// Games cut short by GameStop are not counted.
func (p *Pool) TotalGames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalGames
}

// Player1Win returns the number of games won by the 1P engine.
func (p *Pool) Player1Win() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.player1Win
}

// Player2Win returns the number of games won by the 2P engine.
func (p *Pool) Player2Win() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.player2Win
}

// BlackWin returns the number of games won by Black, across both engines.
func (p *Pool) BlackWin() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blackWin
}

// WhiteWin returns the number of games won by White, across both engines.
func (p *Pool) WhiteWin() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.whiteWin
}

// DrawGames returns the number of drawn games (includes move-cap draws).
func (p *Pool) DrawGames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drawGames
}

// GameKifus returns the ordered history of completed games.
func (p *Pool) GameKifus() []match.Kifu {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]match.Kifu{}, p.kifus...)
}

// GameRating computes the current Elo stats from the running tallies.
func (p *Pool) GameRating() EloStats {
	p.mu.Lock()
	p1, p2, black, white, draws := p.player1Win, p.player2Win, p.blackWin, p.whiteWin, p.drawGames
	p.mu.Unlock()

	return ComputeElo(p1, p2, black, white, draws)
}

// GameInfo renders the current Elo stats as a pretty one-line summary.
func (p *Pool) GameInfo() string {
	return p.GameRating().Pretty()
}
