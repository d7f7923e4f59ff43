package storage

import "errors"

// Sentinel outcomes of enroll/payment writes. Both are normal results
// of a duplicate submission, not failures.
var (
	ErrAlreadyEnrolled = errors.New("storage: identity already enrolled")
	ErrTxidUsed        = errors.New("storage: txid already used")
)

type Storage interface {
	// ticket registry
	EnrollParticipant(identity string) (int64, error)
	ParticipantCount() (int64, error)
	ParticipantSnapshot() ([]*Participant, error)
	ClearParticipants() error

	// payment records
	HasPayment(txid string) (bool, error)
	RecordPaymentAndEnroll(txid, identity string, amount int64) (int64, error)

	// round history
	CreateRound(round *Round) error
	UpdateRound(round *Round) error
	SaveRoundEntries(entries []*RoundEntry) error
	RecentRounds(limit int) ([]*Round, error)
	Stats() (*RoundStats, error)

	Close() error
}
