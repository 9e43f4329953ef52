package arena_test

import (
	"os"
	"sync"
	"testing"

	"github.com/herohde/usiarena/pkg/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWriterCreatesUniqueFilesPerInstance(t *testing.T) {
	dir := t.TempDir()

	w1, err := arena.NewLogWriter(dir, "kifu")
	require.NoError(t, err)
	defer w1.Close()

	w2, err := arena.NewLogWriter(dir, "kifu")
	require.NoError(t, err)
	defer w2.Close()

	assert.NotEqual(t, w1.Name(), w2.Name())
}

func TestLogWriterConcurrentWritesAreSerialized(t *testing.T) {
	dir := t.TempDir()
	w, err := arena.NewLogWriter(dir, "kifu")
	require.NoError(t, err)
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			require.NoError(t, w.Write("line"))
		}(i)
	}
	wg.Wait()

	content, err := os.ReadFile(w.Name())
	require.NoError(t, err)
	assert.Equal(t, 50, countLines(string(content)))
}

func countLines(s string) int {
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}
