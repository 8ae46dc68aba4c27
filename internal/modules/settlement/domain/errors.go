package domain

import "errors"

var (
	// ErrUnknownGame is returned for a game type without configured limits
	ErrUnknownGame = errors.New("unknown game type")

	// ErrBetOutOfRange is returned when the stake is outside the game's
	// min/max bounds. Rejected before any randomness is consumed.
	ErrBetOutOfRange = errors.New("bet amount outside game limits")

	// ErrRoundNotFound is returned for operations on a round that does not
	// exist or was already destroyed (terminal status).
	ErrRoundNotFound = errors.New("round not found")

	// ErrRoundNotActive is returned for reveal/cashout on a finished round
	ErrRoundNotActive = errors.New("round is not active")

	// ErrNotRoundOwner is returned when the caller's account does not own
	// the round
	ErrNotRoundOwner = errors.New("round belongs to another account")

	// ErrTileOutOfRange is returned for a reveal outside the 5x5 grid
	ErrTileOutOfRange = errors.New("tile position outside grid")

	// ErrTileRevealed is returned when the tile was already revealed
	ErrTileRevealed = errors.New("tile already revealed")

	// ErrRoundInProgress is returned when the account already has an active
	// round; it must be cashed out or busted before a new one starts
	ErrRoundInProgress = errors.New("account already has an active round")

	// ErrNoTilesRevealed is returned for a cashout before any tile reveal
	ErrNoTilesRevealed = errors.New("cashout requires at least one revealed tile")

	// ErrOutcomeUnrecoverable is returned when a debited wager's recorded
	// draw cannot be reproduced with the current server seed (for example
	// after a restart lost the in-memory seed state). The debit stands and
	// the case goes to manual reconciliation; the outcome is never
	// re-drawn under a different seed.
	ErrOutcomeUnrecoverable = errors.New("recorded draw cannot be reproduced with current seed")
)
