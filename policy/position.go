package policy

import (
	"errors"
	"fmt"
	"strings"
)

const (
	LevelRun    = "Run"
	LevelCheck  = "Check"
	LevelRule   = "Rule"
	LevelAction = "Action"
)

// One step of a location in a document: the level and the 1-based index of the element at that level.
type Position struct {
	Level string
	Index int
}

// Location of an element in a document, outermost level first.
//
// Paths are values: Push always returns a new slice, so a Path can be handed to recursive calls without aliasing.
type Path []Position

func (p Path) Push(level string, index int) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, Position{Level: level, Index: index})
}

// Renders innermost first, eg "Rule #3 in Check #2 in Run #1"
func (p Path) String() string {
	parts := make([]string, 0, len(p))
	for i := len(p) - 1; i >= 0; i-- {
		parts = append(parts, fmt.Sprintf("%s #%d", p[i].Level, p[i].Index))
	}
	return strings.Join(parts, " in ")
}

// Wraps a hydration or resolution failure with the location where it happened.
type PositionError struct {
	Path Path
	Err  error
}

func (e *PositionError) Error() string {
	return e.Path.String() + ": " + e.Err.Error()
}

func (e *PositionError) Unwrap() error {
	return e.Err
}

// Attaches positional context to an error. The innermost position wins: errors which already carry a position are returned unchanged.
func AtPath(p Path, err error) error {
	if err == nil || len(p) == 0 {
		return err
	}
	var pe *PositionError
	if errors.As(err, &pe) {
		return err
	}
	return &PositionError{Path: p, Err: err}
}
