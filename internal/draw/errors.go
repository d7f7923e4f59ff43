package draw

import (
	"errors"
	"fmt"
)

// Synchronous admin-request rejections.
var (
	ErrDrawInProgress           = errors.New("draw: round already in progress")
	ErrInsufficientParticipants = errors.New("draw: at least 2 participants required")
)

type RejectReason string

const (
	ReasonAlreadyUsed        RejectReason = "already_used"
	ReasonNotFound           RejectReason = "not_found"
	ReasonNoMatchingTransfer RejectReason = "no_matching_transfer"
	ReasonInsufficientAmount RejectReason = "insufficient_amount"
)

// RejectionError is the verifier's answer to a bad payment. Never
// fatal; the reason goes back to the submitting user.
type RejectionError struct {
	Reason RejectReason
	// Amount is the transferred amount in smallest units, set for
	// ReasonInsufficientAmount so the reply can show what arrived.
	Amount int64
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("draw: payment rejected: %s", e.Reason)
}

// RevealTimeoutError: the target block never showed up within the
// polling budget. The round number is retired; participants stay
// enrolled for a manual retry.
type RevealTimeoutError struct {
	RoundNumber int64
	Attempts    int
}

func (e *RevealTimeoutError) Error() string {
	return fmt.Sprintf("draw: round %d: no block hash after %d attempts", e.RoundNumber, e.Attempts)
}
