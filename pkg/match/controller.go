package match

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/herohde/usiarena/pkg/usi"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/util/contextx"
	"github.com/seekerror/stdlib/pkg/util/iox"
)

// DefaultMoveCap substitutes for repetition detection: a game that reaches
// this many plies without a decisive or declared result ends in a draw.
const DefaultMoveCap = 320

// timeupThreshold is how far a clock may underflow before the offending
// side loses on time. Reproduced as-is for test parity with the reference.
const timeupThreshold = 2 * time.Second

// elapsedDeduction absorbs engine round-trip overhead before the elapsed
// move time is quantized to whole seconds. Ad hoc; reproduced as-is.
const elapsedDeduction = 300 * time.Millisecond

// ControllerOption configures a Controller at construction.
type ControllerOption func(*Controller)

// WithFlipTurn sets the color assignment: if true, engine 0 plays White and
// engine 1 plays Black; if false (the default), the opposite.
func WithFlipTurn(flip bool) ControllerOption {
	return func(c *Controller) {
		c.flipTurn = flip
	}
}

// WithMoveCap overrides DefaultMoveCap.
func WithMoveCap(n int) ControllerOption {
	return func(c *Controller) {
		c.moveCap = n
	}
}

// Controller drives a single game between two connected USI sessions:
// alternating turns, tracking Fischer-style per-side clocks, and detecting
// resignation, declared win, time loss, or the move cap.
type Controller struct {
	engines  [2]*usi.Session
	flipTurn bool
	moveCap  int

	mu        sync.Mutex
	sfen      string
	ply       int
	side      usi.Side
	remaining [2]time.Duration
	tc        usi.TimeControl
	result    Result

	quit iox.AsyncCloser
	done chan struct{}
}

// NewController creates a Controller over two already-constructed (not
// necessarily yet connected) sessions.
func NewController(engine0, engine1 *usi.Session, opts ...ControllerOption) *Controller {
	c := &Controller{
		engines: [2]*usi.Session{engine0, engine1},
		moveCap: DefaultMoveCap,
		result:  Init,
		quit:    iox.NewAsyncCloser(),
		done:    make(chan struct{}),
	}
	for _, fn := range opts {
		fn(c)
	}
	return c
}

// SetTimeSetting parses tokens per usi.ParseTimeControl and stores the
// resulting per-side table.
func (c *Controller) SetTimeSetting(tokens string) error {
	tc, err := usi.ParseTimeControl(tokens)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tc = tc
	c.mu.Unlock()
	return nil
}

// GameStart launches the game loop asynchronously on its own goroutine.
// Preconditions: both sessions are connected and in usi.WaitCommand.
func (c *Controller) GameStart(ctx context.Context, startSfen string, startPly int) {
	c.mu.Lock()
	c.result = Playing
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx, startSfen, startPly)
}

// Terminate requests the game stop: the in-flight move's context is
// cancelled (so a hung WaitBestmove does not block the stop) and the engine
// to move is sent "stop", after which the result becomes StopGame.
func (c *Controller) Terminate() {
	c.quit.Close()
}

// Done is closed once the game has reached a terminal result.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Sfen returns the current position string.
func (c *Controller) Sfen() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sfen
}

// Ply returns the current ply counter.
func (c *Controller) Ply() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ply
}

// SideToMove returns the side to move.
func (c *Controller) SideToMove() usi.Side {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.side
}

// Result returns the current (possibly non-terminal) game result.
func (c *Controller) Result() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// playerNumber returns which engine slot (0 or 1) plays side, accounting
// for flipTurn. playerNumber(Black) == 0 iff flipTurn == false.
func (c *Controller) playerNumber(side usi.Side) int {
	engine0IsBlack := !c.flipTurn
	if (side == usi.Black) == engine0IsBlack {
		return 0
	}
	return 1
}

func (c *Controller) engine(side usi.Side) *usi.Session {
	return c.engines[c.playerNumber(side)]
}

func (c *Controller) run(ctx context.Context, startSfen string, startPly int) {
	defer close(c.done)

	sfen := normalizeSfen(startSfen, startPly)
	ply := countMoves(sfen)

	c.engines[0].UsiPosition(ctx, sfen)
	side, err := c.engines[0].GetSideToMove(ctx)
	if err != nil {
		if c.quit.IsClosed() {
			c.finish(ctx, StopGame)
			return
		}
		if !errors.Is(err, usi.ErrChildDied) {
			logw.Warningf(ctx, "match: side query failed: %v", err)
		}
		c.finish(ctx, ChildDied)
		return
	}

	for _, e := range c.engines {
		if err := e.SendCommand("usinewgame"); err != nil {
			logw.Warningf(ctx, "match: usinewgame dropped: %v", err)
		}
	}

	c.mu.Lock()
	tc := c.tc
	c.sfen = sfen
	c.ply = ply
	c.side = side
	c.remaining = [2]time.Duration{
		time.Duration(tc.Time1p) * time.Millisecond,
		time.Duration(tc.Time2p) * time.Millisecond,
	}
	c.mu.Unlock()

	for {
		if c.quit.IsClosed() {
			c.finish(ctx, StopGame)
			return
		}

		c.mu.Lock()
		ply := c.ply
		sfen := c.sfen
		side := c.side
		c.mu.Unlock()

		if ply >= c.moveCap {
			c.finish(ctx, MaxMoves)
			return
		}

		mover := c.engine(side)
		moverIdx := c.playerNumber(side)

		mover.UsiPosition(ctx, sfen)

		args := c.buildGoArgs(tc, side)
		start := time.Now()
		result, err := c.think(ctx, mover, args)
		elapsed := time.Since(start)
		if err != nil {
			if c.quit.IsClosed() {
				c.finish(ctx, StopGame)
				return
			}
			if errors.Is(err, usi.ErrChildDied) {
				c.finish(ctx, ChildDied)
				return
			}
			logw.Warningf(ctx, "match: %v think failed: %v", side, err)
			c.finish(ctx, ChildDied)
			return
		}

		elapsedMs := elapsedQuantizedMs(elapsed)

		c.mu.Lock()
		newRemaining := c.remaining[moverIdx] - time.Duration(elapsedMs)*time.Millisecond
		c.mu.Unlock()

		if newRemaining < -timeupThreshold {
			logw.Warningf(ctx, "match: %v overran its clock by %v; this should not happen in a well-configured match", side, -newRemaining)
			c.finish(ctx, oppositeWin(side))
			return
		}
		if newRemaining < 0 {
			newRemaining = 0
		}
		newRemaining += incOf(tc, moverIdx)

		c.mu.Lock()
		c.remaining[moverIdx] = newRemaining
		c.mu.Unlock()

		switch result.BestMove {
		case "resign":
			c.finish(ctx, oppositeWin(side))
			return
		case "win":
			c.finish(ctx, winFor(side))
			return
		default:
			c.mu.Lock()
			c.sfen = c.sfen + " " + result.BestMove
			c.side = side.Flip()
			c.ply++
			c.mu.Unlock()
		}
	}
}

func (c *Controller) finish(ctx context.Context, result Result) {
	c.mu.Lock()
	c.result = result
	c.mu.Unlock()

	switch {
	case result.IsDraw():
		for _, e := range c.engines {
			_ = e.SendCommand("gameover draw")
		}
	case result == BlackWin || result == WhiteWin:
		winner := usi.Black
		if result == WhiteWin {
			winner = usi.White
		}
		winnerIdx := c.playerNumber(winner)
		loserIdx := 1 - winnerIdx
		_ = c.engines[winnerIdx].SendCommand("gameover win")
		_ = c.engines[loserIdx].SendCommand("gameover lose")
	default:
		// StopGame, ChildDied, IllegalMove: no gameover broadcast.
	}

	logw.Infof(ctx, "match: finished, result=%v", result)
}

// think runs one "go" cycle on mover, bounding the wait by c.quit: a
// Terminate mid-think sends "stop" to mover and cancels the derived context,
// so a hung engine cannot block Terminate from taking effect.
func (c *Controller) think(ctx context.Context, mover *usi.Session, args string) (usi.ThinkResult, error) {
	wctx, cancel := contextx.WithQuitCancel(ctx, c.quit.Closed())
	defer cancel()

	moveDone := make(chan struct{})
	defer close(moveDone)

	go func() {
		select {
		case <-c.quit.Closed():
			mover.UsiStop(ctx)
		case <-moveDone:
		}
	}()

	return mover.UsiGoAndWaitBestmove(wctx, args)
}

func (c *Controller) buildGoArgs(tc usi.TimeControl, side usi.Side) string {
	blackIdx := c.playerNumber(usi.Black)
	whiteIdx := c.playerNumber(usi.White)
	moverIdx := c.playerNumber(side)

	c.mu.Lock()
	btime := c.remaining[blackIdx].Milliseconds()
	wtime := c.remaining[whiteIdx].Milliseconds()
	c.mu.Unlock()

	head := fmt.Sprintf("btime %d wtime %d", btime, wtime)

	if incOf(tc, moverIdx) == 0 {
		return fmt.Sprintf("%v byoyomi %d", head, byoyomiOf(tc, moverIdx))
	}
	return fmt.Sprintf("%v binc %d winc %d", head, incOf(tc, blackIdx), incOf(tc, whiteIdx))
}

func incOf(tc usi.TimeControl, idx int) int {
	if idx == 0 {
		return tc.Inc1p
	}
	return tc.Inc2p
}

func byoyomiOf(tc usi.TimeControl, idx int) int {
	if idx == 0 {
		return tc.Byoyomi1p
	}
	return tc.Byoyomi2p
}

func winFor(side usi.Side) Result {
	if side == usi.Black {
		return BlackWin
	}
	return WhiteWin
}

func oppositeWin(side usi.Side) Result {
	return winFor(side.Flip())
}

// normalizeSfen ensures sfen contains the literal "moves" token, then
// truncates any appended move list to startPly-1 moves when startPly > 0.
func normalizeSfen(sfen string, startPly int) string {
	fields := strings.Fields(sfen)

	movesIdx := -1
	for i, f := range fields {
		if f == "moves" {
			movesIdx = i
			break
		}
	}
	if movesIdx < 0 {
		fields = append(fields, "moves")
		movesIdx = len(fields) - 1
	}

	if startPly > 0 {
		keep := startPly - 1
		if keep < 0 {
			keep = 0
		}
		moveTokens := fields[movesIdx+1:]
		if keep < len(moveTokens) {
			moveTokens = moveTokens[:keep]
		}
		fields = append(append([]string{}, fields[:movesIdx+1]...), moveTokens...)
	}

	return strings.Join(fields, " ")
}

func countMoves(sfen string) int {
	fields := strings.Fields(sfen)
	for i, f := range fields {
		if f == "moves" {
			return len(fields) - i - 1
		}
	}
	return 0
}

func elapsedQuantizedMs(d time.Duration) int64 {
	adj := d.Seconds() - elapsedDeduction.Seconds()
	q := math.Ceil(adj)
	ms := int64(q) * 1000
	if ms < 0 {
		ms = 0
	}
	return ms
}
