//go:build !deadlock

// Package syncutil provides the mutex types used around shared trim state.
// Building with -tags deadlock swaps in go-deadlock for lock-order checking.
package syncutil

import "sync"

type Mutex struct {
	sync.Mutex
}

type RWMutex struct {
	sync.RWMutex
}
