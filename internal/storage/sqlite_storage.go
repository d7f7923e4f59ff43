package storage

import (
	"errors"
	"sync"
	"time"

	"fortuna/internal/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type SqliteStorage struct {
	db *gorm.DB

	// sqlite has a single writer anyway; serializing writes here keeps
	// gorm from ever seeing SQLITE_BUSY. The unique indexes stay the
	// final arbiter of duplicate enrollments and txid replays.
	mu sync.Mutex
}

func NewSqliteStorage(path string) (*SqliteStorage, error) {

	logger.Debug("initializing database...")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&Participant{},
		&PaymentRecord{},
		&Round{},
		&RoundEntry{},
	)

	if err != nil {
		return nil, err
	}

	return &SqliteStorage{
		db: db,
	}, nil
}

func (s *SqliteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnrollParticipant allocates the next ticket number and inserts the
// participant in one transaction. Re-submission by an enrolled identity
// returns ErrAlreadyEnrolled.
func (s *SqliteStorage) EnrollParticipant(identity string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ticket int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		ticket, err = enrollInTx(tx, identity)
		return err
	})
	if err != nil {
		return 0, err
	}

	logger.Debug("participant enrolled")
	return ticket, nil
}

func enrollInTx(tx *gorm.DB, identity string) (int64, error) {
	var existing int64
	err := tx.Model(&Participant{}).Where("identity = ?", identity).Count(&existing).Error
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, ErrAlreadyEnrolled
	}

	var next int64
	err = tx.Raw(`
		select coalesce(max(ticket_number), 0) + 1
		from participants
	`).Scan(&next).Error
	if err != nil {
		return 0, err
	}

	participant := &Participant{
		TicketNumber: next,
		Identity:     identity,
		EnrolledAt:   time.Now().UTC(),
	}
	if err := tx.Create(participant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, ErrAlreadyEnrolled
		}
		return 0, err
	}

	return next, nil
}

func (s *SqliteStorage) ParticipantCount() (int64, error) {
	var count int64
	err := s.db.Model(&Participant{}).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SqliteStorage) ParticipantSnapshot() ([]*Participant, error) {
	var participants []*Participant
	err := s.db.Order("ticket_number asc").Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (s *SqliteStorage) ClearParticipants() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Where("1 = 1").Delete(&Participant{}).Error
	if err != nil {
		return err
	}

	logger.Debug("participant registry cleared")
	return nil
}

func (s *SqliteStorage) HasPayment(txid string) (bool, error) {
	var count int64
	err := s.db.Model(&PaymentRecord{}).Where("txid = ?", txid).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordPaymentAndEnroll writes the payment record and the participant
// in one transaction: a duplicate txid rolls back the enrollment, a
// duplicate identity rolls back the payment record, so a txid can never
// end up bound to a second identity.
func (s *SqliteStorage) RecordPaymentAndEnroll(txid, identity string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ticket int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		record := &PaymentRecord{
			Txid:        txid,
			Identity:    identity,
			Amount:      amount,
			Status:      "confirmed",
			FirstSeenAt: time.Now().UTC(),
		}
		if err := tx.Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrTxidUsed
			}
			return err
		}

		var err error
		ticket, err = enrollInTx(tx, identity)
		return err
	})
	if err != nil {
		return 0, err
	}

	logger.Debug("payment recorded, participant enrolled")
	return ticket, nil
}

func (s *SqliteStorage) CreateRound(round *Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Create(round).Error
}

func (s *SqliteStorage) UpdateRound(round *Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Save(round).Error
}

func (s *SqliteStorage) SaveRoundEntries(entries []*RoundEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}
	return s.db.CreateInBatches(entries, 100).Error
}

func (s *SqliteStorage) RecentRounds(limit int) ([]*Round, error) {
	var rounds []*Round
	err := s.db.Order("round_number desc").Limit(limit).Find(&rounds).Error
	if err != nil {
		return nil, err
	}
	return rounds, nil
}

func (s *SqliteStorage) Stats() (*RoundStats, error) {
	var stats RoundStats
	err := s.db.Raw(`
		select
			coalesce(sum(case when status = ? then 1 else 0 end), 0) as rounds_resolved,
			coalesce(sum(case when status = ? then 1 else 0 end), 0) as rounds_failed,
			coalesce(sum(case when status = ? then total_bank else 0 end), 0) as total_bank,
			coalesce(sum(case when status = ? then prize else 0 end), 0) as total_prize
		from rounds
	`, RoundResolved, RoundFailed, RoundResolved, RoundResolved).Scan(&stats).Error
	if err != nil {
		return nil, err
	}

	return &stats, nil
}
