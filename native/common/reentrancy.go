package common

import "errors"

// ErrReentrantCall indicates a mutating operation was entered while another
// one was still in flight, typically via a payout callback trying to re-invoke
// the engine.
var ErrReentrantCall = errors.New("reentrant call")

// ReentrancyGuard is the advisory busy flag shared by all mutating entry
// points of an engine. Enter must be paired with the returned release function
// on every exit path; the idiom is
//
//	release, err := guard.Enter()
//	if err != nil { return err }
//	defer release()
//
// The execution model serialises mutating operations, so a plain bool is
// sufficient; the guard exists to catch nested re-entry within one operation,
// not cross-goroutine races.
type ReentrancyGuard struct {
	busy bool
}

// Enter acquires the guard. It fails with ErrReentrantCall when the guard is
// already held.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if g == nil {
		return func() {}, nil
	}
	if g.busy {
		return nil, ErrReentrantCall
	}
	g.busy = true
	return func() { g.busy = false }, nil
}

// Busy reports whether an operation currently holds the guard.
func (g *ReentrancyGuard) Busy() bool {
	return g != nil && g.busy
}
