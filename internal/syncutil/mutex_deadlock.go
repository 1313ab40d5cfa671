//go:build deadlock

// Package syncutil provides the mutex types used around shared trim state.
// Building with -tags deadlock swaps in go-deadlock for lock-order checking.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

type Mutex struct {
	deadlock.Mutex
}

type RWMutex struct {
	deadlock.RWMutex
}
