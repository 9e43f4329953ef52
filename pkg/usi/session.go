package usi

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/seekerror/logw"
)

// sendQueueCapacity bounds the write-worker's command queue. The reference
// implementation this is modeled after uses an unbounded queue; a bound
// catches a runaway producer instead of exhausting memory.
const sendQueueCapacity = 1024

// SessionOption configures a Session at construction.
type SessionOption func(*Session)

// WithDebugSink mirrors unrecognized engine output lines, and any line
// containing the substring "Error", to fn.
func WithDebugSink(fn func(line string)) SessionOption {
	return func(s *Session) {
		s.debug = fn
	}
}

// Session owns one child-process USI engine: an asynchronous, bidirectional
// channel with a state machine gating which commands may be issued when.
// Destruction (Disconnect) implies sending "quit" and joining both worker
// goroutines.
type Session struct {
	mu   sync.Mutex
	cond *sync.Cond

	state         State
	think         ThinkResult
	bestmoveReady bool
	lastLine      string
	termErr       error // set when the session reaches Disconnected abnormally

	options map[string]string
	debug   func(line string)

	path   string
	cmd    *exec.Cmd
	stdin  *bufio.Writer
	closer io.Closer

	sendCh chan string
	wg     sync.WaitGroup
}

// NewSession creates an unconnected session in state WaitConnecting.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		state:   WaitConnecting,
		options: map[string]string{},
		sendCh:  make(chan string, sendQueueCapacity),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, fn := range opts {
		fn(s)
	}
	return s
}

// SetOptions records options to be applied during the next Connect's
// startup handshake. Pure; no I/O. Insertion order is irrelevant.
func (s *Session) SetOptions(m map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range m {
		s.options[k] = v
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect resolves path, spawns the child with its working directory set to
// the parent of the executable, and starts the read/write workers. The write
// worker runs the setoption/isready startup handshake asynchronously: Connect
// returns without waiting for it, so callers wait for WaitCommand.
func (s *Session) Connect(ctx context.Context, path string) error {
	s.mu.Lock()
	if s.state != WaitConnecting && s.state != Disconnected {
		s.mu.Unlock()
		return fmt.Errorf("%w: connect called from %v", ErrIllegalState, s.state)
	}
	s.mu.Unlock()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	cmd := exec.Command(abs)
	cmd.Dir = filepath.Dir(abs)
	cmd.Stderr = nil

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}

	s.mu.Lock()
	s.path = abs
	s.cmd = cmd
	s.stdin = bufio.NewWriter(stdin)
	s.closer = stdin
	s.state = Connected
	opts := make(map[string]string, len(s.options))
	for k, v := range s.options {
		opts[k] = v
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Add(2)
	go s.readWorker(ctx, stdout)
	go s.writeWorker(ctx, opts)

	logw.Infof(ctx, "engine %v: connected", abs)
	return nil
}

// Disconnect enqueues "quit", waits for both workers to stop, closes the
// pipe, and terminates the child if it has not already exited. Idempotent.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	if s.cmd == nil {
		s.mu.Unlock()
		return
	}
	alreadyDone := s.state == Disconnected
	s.mu.Unlock()

	if !alreadyDone {
		s.sendCh <- "quit"
	}
	s.wg.Wait()

	_ = s.closer.Close()
	if s.cmd.ProcessState == nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()

	logw.Infof(ctx, "engine %v: disconnected", s.path)
}

// SendCommand is a non-blocking enqueue to the write path. Fails loudly with
// ErrQueueFull if the bounded queue is saturated.
func (s *Session) SendCommand(line string) error {
	select {
	case s.sendCh <- line:
		return nil
	default:
		return ErrQueueFull
	}
}

// UsiPosition asynchronously sets the current position.
func (s *Session) UsiPosition(ctx context.Context, sfen string) {
	if err := s.SendCommand("position " + sfen); err != nil {
		logw.Warningf(ctx, "engine %v: position dropped: %v", s.path, err)
	}
}

// UsiGo is only accepted when the session is in WaitCommand; any other
// state fails with ErrIllegalState without enqueueing anything.
func (s *Session) UsiGo(ctx context.Context, args string) error {
	if s.State() != WaitCommand {
		return fmt.Errorf("%w: go issued from %v", ErrIllegalState, s.State())
	}

	s.mu.Lock()
	s.bestmoveReady = false
	s.think = ThinkResult{}
	s.mu.Unlock()

	cmd := "go"
	if args != "" {
		cmd = "go " + args
	}
	return s.SendCommand(cmd)
}

// UsiStop asynchronously requests the engine stop searching. Dropped
// silently by the write worker unless the session is currently WaitBestmove.
func (s *Session) UsiStop(ctx context.Context) {
	if err := s.SendCommand("stop"); err != nil {
		logw.Warningf(ctx, "engine %v: stop dropped: %v", s.path, err)
	}
}

// WaitForState blocks until the session reaches want, or fails with
// ErrChildDied (if the read worker observed the child exit unexpectedly) or
// ErrDisconnected (a clean quit) if the session dies first.
func (s *Session) WaitForState(ctx context.Context, want State) error {
	if err := s.waitUntil(ctx, func() bool { return s.state == want || s.state == Disconnected }); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != want {
		return s.disconnectErrLocked()
	}
	return nil
}

// WaitBestmove blocks until the current think-result has a best move.
func (s *Session) WaitBestmove(ctx context.Context) (ThinkResult, error) {
	if err := s.waitUntil(ctx, func() bool { return s.bestmoveReady || s.state == Disconnected }); err != nil {
		return ThinkResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bestmoveReady {
		return ThinkResult{}, s.disconnectErrLocked()
	}
	return s.think, nil
}

// disconnectErrLocked reports why the session is Disconnected: ErrChildDied
// if the read worker observed an abnormal exit, ErrDisconnected for a clean
// quit. Callers must hold s.mu.
func (s *Session) disconnectErrLocked() error {
	if s.termErr != nil {
		return s.termErr
	}
	return ErrDisconnected
}

// UsiGoAndWaitBestmove composes UsiGo and WaitBestmove.
func (s *Session) UsiGoAndWaitBestmove(ctx context.Context, args string) (ThinkResult, error) {
	if err := s.UsiGo(ctx, args); err != nil {
		return ThinkResult{}, err
	}
	return s.WaitBestmove(ctx)
}

// GetMoves sends the "moves" extension query and returns its single
// response line.
func (s *Session) GetMoves(ctx context.Context) (string, error) {
	return s.queryLine(ctx, "moves")
}

// GetSideToMove sends the "side" extension query and returns the side.
func (s *Session) GetSideToMove(ctx context.Context) (Side, error) {
	line, err := s.queryLine(ctx, "side")
	if err != nil {
		return Black, err
	}
	return ParseSide(strings.TrimSpace(line))
}

func (s *Session) queryLine(ctx context.Context, query string) (string, error) {
	if s.State() != WaitCommand {
		return "", fmt.Errorf("%w: %v issued from %v", ErrIllegalState, query, s.State())
	}
	if err := s.SendCommand(query); err != nil {
		return "", err
	}
	if err := s.WaitForState(ctx, WaitCommand); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLine, nil
}

// waitUntil blocks on the session's condition variable until pred holds or
// ctx is done.
func (s *Session) waitUntil(ctx context.Context, pred func() bool) error {
	if ctx != nil && ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		defer stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for !pred() {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		s.cond.Wait()
	}
	return nil
}

// writeWorker performs the startup handshake (setoption*, isready) then
// consumes the send queue, gating each command on the state it requires
// before writing it to the child's stdin.
func (s *Session) writeWorker(ctx context.Context, opts map[string]string) {
	defer s.wg.Done()

	for name, value := range opts {
		s.writeLine(fmt.Sprintf("setoption name %v value %v", name, value))
	}

	// Enter WaitReadyOk before writing isready, so a fast readyok cannot be
	// overwritten by this transition.
	s.mu.Lock()
	s.state = WaitReadyOk
	s.cond.Broadcast()
	s.mu.Unlock()

	s.writeLine("isready")

	for msg := range s.sendCh {
		if s.dispatch(ctx, msg) {
			return
		}
	}
}

// dispatch classifies and gates msg, writes it, and returns true if the
// write worker should exit (the session quit or died).
func (s *Session) dispatch(ctx context.Context, msg string) (exit bool) {
	fields := strings.Fields(msg)
	if len(fields) == 0 {
		return false
	}
	token := fields[0]

	switch token {
	case "go", "position", "usinewgame", "gameover", "setoption", "moves", "side":
		if err := s.waitUntil(ctx, func() bool { return s.state == WaitCommand || s.state == Disconnected }); err != nil {
			return false
		}
		s.mu.Lock()
		if s.state != WaitCommand {
			s.mu.Unlock()
			return true // session died while we waited
		}
		switch token {
		case "go":
			s.state = WaitBestmove
		case "moves", "side":
			s.state = WaitOneLine
		}
		s.cond.Broadcast()
		s.mu.Unlock()

		s.writeLine(msg)
		return false

	case "stop":
		s.mu.Lock()
		ok := s.state == WaitBestmove
		s.mu.Unlock()
		if ok {
			s.writeLine(msg)
		}
		return false

	case "quit":
		s.writeLine(msg)

		s.mu.Lock()
		s.state = Disconnected
		s.cond.Broadcast()
		s.mu.Unlock()
		return true

	default:
		// Forward compatibility: pass through commands this design does not
		// name without gating.
		s.writeLine(msg)
		return false
	}
}

func (s *Session) writeLine(line string) {
	if s.stdin == nil {
		return
	}
	_, _ = s.stdin.WriteString(line)
	_, _ = s.stdin.WriteString("\n")
	_ = s.stdin.Flush()
}

// readWorker blocks on the child's stdout, updating shared state under the
// session lock before notifying waiters.
func (s *Session) readWorker(ctx context.Context, stdout io.Reader) {
	defer s.wg.Done()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		s.handleLine(ctx, scanner.Text())
	}

	s.mu.Lock()
	if s.state != Disconnected {
		s.state = Disconnected
		s.termErr = ErrChildDied
		logw.Warningf(ctx, "engine %v: child died unexpectedly", s.path)
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Session) handleLine(ctx context.Context, line string) {
	s.mu.Lock()

	s.lastLine = line
	if s.debug != nil && strings.Contains(line, "Error") {
		s.debug(line)
	}

	if s.state == WaitOneLine {
		s.state = WaitCommand
		s.cond.Broadcast()
		s.mu.Unlock()
		return
	}

	scan := NewScanner(line)
	tok, _ := scan.Peek()
	switch tok {
	case "readyok":
		s.state = WaitCommand
		s.cond.Broadcast()

	case "bestmove":
		_, _ = scan.Get()
		best, ponder := parseBestmove(scan)
		s.think.BestMove = best
		s.think.PonderMove = ponder
		s.bestmoveReady = true
		s.state = WaitCommand
		s.cond.Broadcast()

	case "info":
		_, _ = scan.Get()
		pv, multipv, err := parseInfo(scan)
		if err != nil {
			logw.Warningf(ctx, "engine %v: dropping malformed info record %q: %v", s.path, line, err)
		} else {
			s.think.setPV(multipv, pv)
		}

	default:
		if s.debug != nil {
			s.debug(line)
		}
	}

	s.mu.Unlock()
}
