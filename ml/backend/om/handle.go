// handle.go - Besitzende Handles fuer Treiber-Ressourcen
//
// Jede Ressource (Kontext, Stream, Modell, Speicherblock, Dataset) wird beim
// Anlegen in einen scope gelegt. scope.Close gibt alles in umgekehrter
// Reihenfolge frei, jedes Handle genau einmal.
package om

import (
	"errors"
	"fmt"
	"log/slog"
)

// handle owns one driver resource.
type handle[T any] struct {
	name     string
	value    T
	release  func(T) error
	released bool
}

func (h *handle[T]) Close() error {
	if h == nil || h.released {
		return nil
	}
	h.released = true
	if err := h.release(h.value); err != nil {
		return fmt.Errorf("release %s: %w", h.name, err)
	}
	return nil
}

func (h *handle[T]) String() string { return h.name }

type resource interface {
	Close() error
	String() string
}

// scope releases its resources in LIFO order.
type scope struct {
	owner string
	stack []resource
}

// own pushes v with its release function and returns v.
func own[T any](s *scope, name string, v T, release func(T) error) T {
	s.stack = append(s.stack, &handle[T]{name: name, value: v, release: release})
	return v
}

// push adds a release step that is not tied to a value.
func (s *scope) push(name string, release func() error) {
	own(s, name, struct{}{}, func(struct{}) error { return release() })
}

// Len returns the number of live resources.
func (s *scope) Len() int { return len(s.stack) }

// Close releases everything, newest first. Errors are logged and returned
// joined, releasing never stops early.
func (s *scope) Close() error {
	var errs []error
	for i := len(s.stack) - 1; i >= 0; i-- {
		r := s.stack[i]
		if err := r.Close(); err != nil {
			slog.Warn("failed to release device resource", "owner", s.owner, "resource", r.String(), "error", err)
			errs = append(errs, err)
		}
	}
	s.stack = nil
	return errors.Join(errs...)
}
