// Package client implements the client side of the optimistic balance
// protocol: show the guessed balance immediately, then confirm, correct or
// revert it when the authoritative answer arrives.
package client

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrDeltaOutstanding is returned when a second optimistic delta is staged
// before the first resolves. Submissions must be serialized, not overlapped.
var ErrDeltaOutstanding = errors.New("an optimistic delta is already outstanding")

// Outcome classifies how an optimistic delta was resolved
type Outcome string

const (
	// OutcomeConfirmed means the authoritative balance matched the guess
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeCorrected means the authoritative balance replaced the guess
	OutcomeCorrected Outcome = "corrected"
	// OutcomeReverted means the request failed and the guess was undone
	OutcomeReverted Outcome = "reverted"
)

// Event is one balance_update push received over the broadcast channel
type Event struct {
	TransactionID string
	Seq           int64
	Balance       decimal.Decimal
}

// BalanceView holds the displayed balance for one account. At any instant
// the displayed value is the last authoritative balance, adjusted by at
// most one outstanding optimistic delta.
type BalanceView struct {
	mu sync.Mutex

	authoritative decimal.Decimal
	pending       *delta

	// push-channel bookkeeping
	seenTx  map[string]struct{}
	lastSeq int64
	// deferred holds the freshest push-event balance that arrived while a
	// delta was outstanding; applied if the delta is reverted
	deferred *decimal.Decimal

	resyncNeeded bool
}

type delta struct {
	idemKey string
	amount  decimal.Decimal // signed
}

// NewBalanceView creates a view seeded with an authoritative balance
func NewBalanceView(balance decimal.Decimal) *BalanceView {
	return &BalanceView{
		authoritative: balance,
		seenTx:        make(map[string]struct{}),
	}
}

// Displayed returns the balance the user currently sees
func (v *BalanceView) Displayed() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pending != nil {
		return v.authoritative.Add(v.pending.amount)
	}
	return v.authoritative
}

// Authoritative returns the last server-confirmed balance
func (v *BalanceView) Authoritative() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.authoritative
}

// Stage records an optimistic delta tagged with the request's idempotency
// key. The displayed balance moves immediately.
func (v *BalanceView) Stage(idemKey string, signedAmount decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pending != nil {
		return ErrDeltaOutstanding
	}
	v.pending = &delta{idemKey: idemKey, amount: signedAmount}
	return nil
}

// Resolve settles the outstanding delta against the authoritative balance
// from the server's response. Returns OutcomeConfirmed when the guess was
// exact, OutcomeCorrected when the server's value replaced it.
func (v *BalanceView) Resolve(idemKey string, authoritative decimal.Decimal) Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()

	guess := v.authoritative
	if v.pending != nil && v.pending.idemKey == idemKey {
		guess = guess.Add(v.pending.amount)
		v.pending = nil
	}
	v.deferred = nil
	v.authoritative = authoritative

	if authoritative.Equal(guess) {
		return OutcomeConfirmed
	}
	return OutcomeCorrected
}

// Revert undoes the outstanding delta after a failed request. The displayed
// balance returns exactly to its pre-stage value, unless a push event
// arrived in the meantime and carries a fresher authoritative balance.
func (v *BalanceView) Revert(idemKey string) Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pending != nil && v.pending.idemKey == idemKey {
		v.pending = nil
	}
	if v.deferred != nil {
		v.authoritative = *v.deferred
		v.deferred = nil
	}
	return OutcomeReverted
}

// ApplyEvent folds one push event into the view. Delivery is at-least-once,
// so events are deduplicated by transaction ID; a gap in the sequence marks
// the view for a full resync. Returns false for duplicates.
func (v *BalanceView) ApplyEvent(ev Event) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.seenTx[ev.TransactionID]; ok {
		return false
	}
	v.seenTx[ev.TransactionID] = struct{}{}

	if v.lastSeq > 0 && ev.Seq > v.lastSeq+1 {
		v.resyncNeeded = true
	}
	if ev.Seq > v.lastSeq {
		v.lastSeq = ev.Seq
	}

	if v.pending != nil {
		// The event may already include the outstanding delta; hold it
		// until the in-flight request resolves.
		b := ev.Balance
		v.deferred = &b
		return true
	}
	v.authoritative = ev.Balance
	return true
}

// NeedsResync reports whether a sequence gap was observed
func (v *BalanceView) NeedsResync() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resyncNeeded
}

// Resync replaces the view with a freshly fetched authoritative balance
func (v *BalanceView) Resync(balance decimal.Decimal, seq int64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.authoritative = balance
	v.lastSeq = seq
	v.deferred = nil
	v.resyncNeeded = false
}
