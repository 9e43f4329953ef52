package arena

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

// Line is one opening line out of the book: a starting sfen token (usually
// "startpos") followed by the move tokens played to reach it.
type Line []string

func (l Line) String() string {
	return strings.Join(l, " ")
}

// Book is an ordered set of opening lines, sampled uniformly at random to
// seed a game's starting position.
type Book interface {
	// Sample returns a uniformly random line, or ok == false if the book is
	// empty.
	Sample(rng *rand.Rand) (line Line, ok bool)

	// Len returns the number of lines in the book.
	Len() int
}

// NoBook is an empty opening book; every game starts from "startpos".
var NoBook Book = book(nil)

type book []Line

func (b book) Sample(rng *rand.Rand) (Line, bool) {
	if len(b) == 0 {
		return nil, false
	}
	return b[rng.Intn(len(b))], true
}

func (b book) Len() int {
	return len(b)
}

// NewBook builds a Book from in-memory lines.
func NewBook(lines []Line) Book {
	return book(lines)
}

// LoadBookFile reads an opening book: one starting line per line, each of
// the form "startpos [moves ...]" or "sfen ... [moves ...]". Blank lines and
// lines beginning with "#" are skipped.
func LoadBookFile(path string) (Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open book file: %w", err)
	}
	defer f.Close()

	var lines []Line
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		lines = append(lines, Line(strings.Fields(text)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read book file: %w", err)
	}
	return NewBook(lines), nil
}
