// Copyright 2024-2026 Aiku AI

// Package pindiff computes the edits between two ordered pin lists.
package pindiff

// Change is a single pin edit. Added is false for an unpin.
type Change[T comparable] struct {
	ID    T
	Added bool
}

// Diff returns the identifiers removed from previous followed by the ones
// added in current. Removals keep their order within previous and additions
// keep their order within current. Reordering alone produces no changes.
func Diff[T comparable](current, previous []T) []Change[T] {
	inCurrent := make(map[T]struct{}, len(current))
	for _, id := range current {
		inCurrent[id] = struct{}{}
	}
	inPrevious := make(map[T]struct{}, len(previous))
	for _, id := range previous {
		inPrevious[id] = struct{}{}
	}

	var changes []Change[T]
	for _, id := range previous {
		if _, ok := inCurrent[id]; !ok {
			changes = append(changes, Change[T]{ID: id, Added: false})
		}
	}
	for _, id := range current {
		if _, ok := inPrevious[id]; !ok {
			changes = append(changes, Change[T]{ID: id, Added: true})
		}
	}
	return changes
}
