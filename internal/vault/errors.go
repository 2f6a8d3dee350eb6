package vault

import "errors"

// Every operation validates its guards before touching state, so any error
// below means the call left the vault exactly as it found it.
var (
	ErrUnauthorized        = errors.New("caller is not allowed to perform this action")
	ErrWrongState          = errors.New("operation is not valid in the current vault state")
	ErrInvalidAmount       = errors.New("deposit amount must be a positive integer")
	ErrNoFundsRaised       = errors.New("cannot close fundraising with zero deposits")
	ErrMilestonesExhausted = errors.New("all milestones have already been paid out")
	ErrCooldownActive      = errors.New("retry cooldown after rejection has not elapsed yet")
	ErrVotingClosed        = errors.New("voting window is closed")
	ErrVotingNotEnded      = errors.New("voting window is still open")
	ErrAlreadyVoted        = errors.New("contributor already voted in this round")
	ErrNoDeposit           = errors.New("caller has no recorded deposit")
	ErrInsufficientBalance = errors.New("computed payout exceeds funds currently held")
	ErrTransferFailed      = errors.New("outgoing value transfer failed")
	ErrInvalidMilestones   = errors.New("milestone percentages must be 1..100 each and sum to 100")
	ErrInvalidParams       = errors.New("invalid vault parameters")
)
