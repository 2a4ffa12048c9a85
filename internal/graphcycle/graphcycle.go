// Package graphcycle detects cycles in directed graphs given as successor functions.
// The type registry uses it to reject cyclic supertype declarations.
package graphcycle

import (
	"fmt"
	"strings"
)

// CycleError reports a cycle closing at Key. Path lists the nodes of the cycle
// in traversal order, starting and ending with Key.
type CycleError[K comparable] struct {
	Key  K
	Path []K
}

func (e CycleError[K]) Error() string {
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = fmt.Sprint(k)
	}
	return "cycle detected: " + strings.Join(parts, " -> ")
}

// Config describes the graph to walk.
type Config[K comparable] struct {
	Next   func(K) ([]K, error)
	Starts []K
}

type walker[K comparable] struct {
	next   func(K) ([]K, error)
	done   map[K]bool
	onPath map[K]int
	path   []K
}

// Detect walks the graph depth-first from each start, in order, and returns
// the first cycle found as a CycleError, or the first error from Next.
func Detect[K comparable](cfg Config[K]) error {
	if cfg.Next == nil {
		return fmt.Errorf("cycle detect: next function is nil")
	}
	w := &walker[K]{
		next:   cfg.Next,
		done:   make(map[K]bool, len(cfg.Starts)),
		onPath: make(map[K]int),
	}
	for _, start := range cfg.Starts {
		if err := w.visit(start); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker[K]) visit(key K) error {
	if i, ok := w.onPath[key]; ok {
		cycle := make([]K, 0, len(w.path)-i+1)
		cycle = append(cycle, w.path[i:]...)
		return CycleError[K]{Key: key, Path: append(cycle, key)}
	}
	if w.done[key] {
		return nil
	}
	w.onPath[key] = len(w.path)
	w.path = append(w.path, key)
	succ, err := w.next(key)
	if err != nil {
		return err
	}
	for _, n := range succ {
		if err := w.visit(n); err != nil {
			return err
		}
	}
	w.path = w.path[:len(w.path)-1]
	delete(w.onPath, key)
	w.done[key] = true
	return nil
}
