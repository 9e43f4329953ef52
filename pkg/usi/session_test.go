package usi_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/herohde/usiarena/pkg/usi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain lets this binary re-exec itself as a fake USI engine child
// process, the same helper-process idiom os/exec's own tests use: a test
// spawns os.Args[0] with GO_WANT_HELPER_PROCESS set so the helper process
// runs TestFakeEngine instead of the real test suite.
func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

// TestFakeEngine is not a real test: it is the fake engine's stdin/stdout
// loop, invoked as a subprocess via helperEngine. It implements just
// enough of the USI surface for the session tests below.
func TestFakeEngine(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		t.Skip("not invoked as a helper process")
	}

	reader := newLineReader(os.Stdin)
	for {
		line, ok := reader()
		if !ok {
			return
		}

		switch {
		case line == "isready":
			fmt.Println("readyok")
		case line == "usinewgame":
			// no response
		case line == "moves":
			fmt.Println("7g7f 3c3d")
		case line == "side":
			fmt.Println("black")
		case hasPrefix(line, "position"):
			// no response
		case hasPrefix(line, "go"):
			if os.Getenv("FAKE_ENGINE_SLOW_GO") == "1" {
				time.Sleep(50 * time.Millisecond)
			}
			if os.Getenv("FAKE_ENGINE_MULTIPV") == "1" {
				fmt.Println("info multipv 2 depth 3 score cp 10 pv 3c3d")
				fmt.Println("info multipv 1 depth 3 score cp 42 pv 7g7f")
			} else {
				fmt.Println("info depth 3 score cp 42 pv 7g7f")
			}
			fmt.Println("bestmove 7g7f")
		case line == "stop":
			fmt.Println("bestmove 7g7f")
		case line == "quit":
			return
		}
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func newLineReader(f *os.File) func() (string, bool) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	return func() (string, bool) {
		for {
			for i, b := range buf {
				if b == '\n' {
					line := string(buf[:i])
					buf = buf[i+1:]
					return line, true
				}
			}
			n, err := f.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
			}
			if err != nil {
				if len(buf) > 0 {
					line := string(buf)
					buf = nil
					return line, true
				}
				return "", false
			}
		}
	}
}

// helperEngine builds a self-exec command that runs TestFakeEngine.
func helperEngine(t *testing.T, env ...string) string {
	t.Helper()

	dir := t.TempDir()
	script := dir + "/fake-engine.sh"
	exe, err := os.Executable()
	require.NoError(t, err)

	content := fmt.Sprintf("#!/bin/sh\nexec %q -test.run=TestFakeEngine -test.v=false\n", exe)
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))
	return script
}

func newConnectedSession(t *testing.T) *usi.Session {
	t.Helper()

	path := helperEngine(t)
	s := usi.NewSession()

	ctx := context.Background()
	require.NoError(t, os.Setenv("GO_WANT_HELPER_PROCESS", "1"))
	require.NoError(t, s.Connect(ctx, path))
	require.NoError(t, os.Unsetenv("GO_WANT_HELPER_PROCESS"))

	require.NoError(t, s.WaitForState(ctx, usi.WaitCommand))
	return s
}

func TestSessionHandshakeReachesWaitCommand(t *testing.T) {
	ctx := context.Background()
	s := newConnectedSession(t)
	defer s.Disconnect(ctx)

	assert.Equal(t, usi.WaitCommand, s.State())
}

func TestSessionGoAndWaitBestmove(t *testing.T) {
	ctx := context.Background()
	s := newConnectedSession(t)
	defer s.Disconnect(ctx)

	s.UsiPosition(ctx, "startpos moves 7g7f")
	result, err := s.UsiGoAndWaitBestmove(ctx, "byoyomi 1000")
	require.NoError(t, err)
	assert.Equal(t, "7g7f", result.BestMove)
	require.Len(t, result.PVs, 1)
	assert.Equal(t, 3, mustV(t, result.PVs[0].Depth))
	assert.Equal(t, usi.Score(42), mustVScore(t, result.PVs[0].Score))
	assert.Equal(t, usi.WaitCommand, s.State())
}

func TestSessionIllegalGoWhileBusy(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, os.Setenv("FAKE_ENGINE_SLOW_GO", "1"))
	defer os.Unsetenv("FAKE_ENGINE_SLOW_GO")

	s := newConnectedSession(t)
	defer s.Disconnect(ctx)

	require.NoError(t, s.UsiGo(ctx, ""))
	require.NoError(t, s.WaitForState(ctx, usi.WaitBestmove))
	err := s.UsiGo(ctx, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, usi.ErrIllegalState)

	_, err = s.WaitBestmove(ctx)
	require.NoError(t, err)
}

func TestSessionGetMovesAndSide(t *testing.T) {
	ctx := context.Background()
	s := newConnectedSession(t)
	defer s.Disconnect(ctx)

	moves, err := s.GetMoves(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7g7f 3c3d", moves)

	side, err := s.GetSideToMove(ctx)
	require.NoError(t, err)
	assert.Equal(t, usi.Black, side)
}

func TestSessionStopWhileWaitingForBestmove(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, os.Setenv("FAKE_ENGINE_SLOW_GO", "1"))
	defer os.Unsetenv("FAKE_ENGINE_SLOW_GO")

	s := newConnectedSession(t)
	defer s.Disconnect(ctx)

	require.NoError(t, s.UsiGo(ctx, "infinite"))
	time.Sleep(5 * time.Millisecond)
	s.UsiStop(ctx)

	result, err := s.WaitBestmove(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, result.BestMove)
	assert.Equal(t, usi.WaitCommand, s.State())
}

func TestSessionMultiPVGapFilling(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, os.Setenv("FAKE_ENGINE_MULTIPV", "1"))
	defer os.Unsetenv("FAKE_ENGINE_MULTIPV")

	s := newConnectedSession(t)
	defer s.Disconnect(ctx)

	result, err := s.UsiGoAndWaitBestmove(ctx, "")
	require.NoError(t, err)
	require.Len(t, result.PVs, 2)
	assert.Equal(t, "7g7f", result.PVs[0].PV)
	assert.Equal(t, "3c3d", result.PVs[1].PV)
}

func mustV(t *testing.T, o interface{ V() (int, bool) }) int {
	t.Helper()
	v, ok := o.V()
	require.True(t, ok)
	return v
}

func mustVScore(t *testing.T, o interface{ V() (usi.Score, bool) }) usi.Score {
	t.Helper()
	v, ok := o.V()
	require.True(t, ok)
	return v
}
