// Package diag records diagnostic trouble indicators raised by the trim core.
package diag

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pterm/pterm"

	"github.com/tosih/motronic-fuel-trim/internal/syncutil"
)

// Code identifies a trouble indicator
type Code string

const (
	FaultStftConfig        Code = "STFT_CONFIG"
	FaultSensorUnavailable Code = "STFT_SENSOR_UNAVAILABLE"
)

// Reporter receives faults from the correction engine. Implementations must
// not block the control loop.
type Reporter interface {
	Raise(code Code, msg string, args ...any)
	Clear(code Code, args ...any)
}

// Fault is an active trouble indicator
type Fault struct {
	Code    Code      `json:"code"`
	Message string    `json:"message"`
	Since   time.Time `json:"since"`
	Count   int       `json:"count"`
}

// Log is a Reporter that writes through a pterm logger and keeps the set of
// active faults for the viewer.
type Log struct {
	mu     syncutil.Mutex
	logger *pterm.Logger
	active map[string]*Fault
	now    func() time.Time
}

// NewLog returns a fault log writing to w
func NewLog(w io.Writer) *Log {
	logger := pterm.DefaultLogger.
		WithLevel(pterm.LogLevelInfo).
		WithWriter(w)
	return &Log{
		logger: logger,
		active: make(map[string]*Fault),
		now:    time.Now,
	}
}

func key(code Code, args []any) string {
	if len(args) == 0 {
		return string(code)
	}
	return fmt.Sprint(code, args)
}

// Raise records a fault. Repeated raises of an active fault only bump its count.
func (l *Log) Raise(code Code, msg string, args ...any) {
	k := key(code, args)

	l.mu.Lock()
	f, ok := l.active[k]
	if ok {
		f.Count++
		l.mu.Unlock()
		return
	}
	l.active[k] = &Fault{Code: code, Message: msg, Since: l.now(), Count: 1}
	l.mu.Unlock()

	l.logger.Warn(msg, l.logger.Args(append([]any{"code", string(code)}, args...)...))
}

// Clear drops an active fault
func (l *Log) Clear(code Code, args ...any) {
	k := key(code, args)

	l.mu.Lock()
	_, ok := l.active[k]
	delete(l.active, k)
	l.mu.Unlock()

	if ok {
		l.logger.Info("fault cleared", l.logger.Args(append([]any{"code", string(code)}, args...)...))
	}
}

// Active returns the current faults ordered by code
func (l *Log) Active() []Fault {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Fault, 0, len(l.active))
	for _, f := range l.active {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Message < out[j].Message
	})
	return out
}

// Discard is a Reporter that drops everything
type Discard struct{}

func (Discard) Raise(Code, string, ...any) {}
func (Discard) Clear(Code, ...any)         {}
