package storage

import "time"

type RoundStatus = string

const (
	RoundCommitted RoundStatus = "committed"
	RoundRevealing RoundStatus = "revealing"
	RoundResolved  RoundStatus = "resolved"
	RoundFailed    RoundStatus = "failed"
)

// Participant is one entry in the current (open) round.
type Participant struct {
	TicketNumber int64     `gorm:"primaryKey;autoIncrement:false"`
	Identity     string    `gorm:"uniqueIndex;not null"`
	EnrolledAt   time.Time `gorm:"not null"`
}

// PaymentRecord is kept forever: a txid enrolls exactly one identity
// across all rounds, which is the whole replay protection.
type PaymentRecord struct {
	Txid        string    `gorm:"primaryKey"`
	Identity    string    `gorm:"not null"`
	Amount      int64     `gorm:"not null"`
	Status      string    `gorm:"not null;default:confirmed"`
	FirstSeenAt time.Time `gorm:"not null"`
}

// Round is the append-only history row. RoundNumber is the sqlite
// autoincrement sequence, so numbering survives restarts and a failed
// round retires its number.
type Round struct {
	RoundNumber       int64       `gorm:"primaryKey;autoIncrement"`
	Status            RoundStatus `gorm:"not null"`
	TargetBlockHeight uint64      `gorm:"not null"`
	ParticipantCount  int         `gorm:"not null"`
	WinnerTicket      *int64
	WinnerIdentity    string
	BlockHash         string
	TotalBank         int64
	Commission        int64
	Prize             int64
	StartedAt         time.Time `gorm:"not null"`
	FinishedAt        *time.Time
}

// RoundEntry is the persisted participant snapshot of a round, the
// public half of the commit. Together with the block hash it lets any
// third party recompute the winner.
type RoundEntry struct {
	RoundNumber  int64  `gorm:"primaryKey;autoIncrement:false"`
	TicketNumber int64  `gorm:"primaryKey;autoIncrement:false"`
	Identity     string `gorm:"not null"`
}

// RoundStats aggregates resolved rounds for the /stats reply.
type RoundStats struct {
	RoundsResolved int64
	RoundsFailed   int64
	TotalBank      int64
	TotalPrize     int64
}
