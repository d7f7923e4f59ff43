package draw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fortuna/internal/ledger"
	"fortuna/internal/logger"
	"fortuna/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// progress message is refreshed every this many poll attempts
const progressEvery = 6

// Options carries the tunables of one coordinator.
type Options struct {
	EntryFee         int64
	CommissionRateBp int64
	TokenDecimals    int32

	// BlockOffset is the commit distance K: the target block is the
	// current height plus K, chosen before its hash can be known.
	BlockOffset  uint64
	PollInterval time.Duration
	PollAttempts int
}

// Coordinator runs one round end to end:
// Idle → Committed → Revealing → Resolved | Failed.
// The mutex is the single-flight guard; it is held for the whole
// lifetime of a round and released on every exit path.
type Coordinator struct {
	mu       sync.Mutex
	ledger   Ledger
	store    storage.Storage
	notifier Notifier
	opts     Options
}

func NewCoordinator(l Ledger, store storage.Storage, notifier Notifier, opts Options) *Coordinator {
	return &Coordinator{
		ledger:   l,
		store:    store,
		notifier: notifier,
		opts:     opts,
	}
}

// Run executes a full draw, announcing into the given channel. A call
// while another round is in flight returns ErrDrawInProgress without
// blocking. On success the resolved round is returned and the registry
// is cleared; on a reveal timeout the participants are left untouched.
func (c *Coordinator) Run(ctx context.Context, channel int64) (*storage.Round, error) {
	if !c.mu.TryLock() {
		return nil, ErrDrawInProgress
	}
	defer c.mu.Unlock()

	snapshot, err := c.store.ParticipantSnapshot()
	if err != nil {
		return nil, err
	}
	if len(snapshot) < 2 {
		return nil, ErrInsufficientParticipants
	}

	height, err := c.ledger.CurrentHeight(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	round := &storage.Round{
		Status:            storage.RoundCommitted,
		TargetBlockHeight: height + c.opts.BlockOffset,
		ParticipantCount:  len(snapshot),
		StartedAt:         now,
	}
	if err := c.store.CreateRound(round); err != nil {
		return nil, err
	}

	entries := make([]*storage.RoundEntry, len(snapshot))
	for i, participant := range snapshot {
		entries[i] = &storage.RoundEntry{
			RoundNumber:  round.RoundNumber,
			TicketNumber: participant.TicketNumber,
			Identity:     participant.Identity,
		}
	}
	if err := c.store.SaveRoundEntries(entries); err != nil {
		return nil, c.markFailed(round, err)
	}

	logger.Info("round committed",
		zap.Int64("round", round.RoundNumber),
		zap.Uint64("target_block", round.TargetBlockHeight),
		zap.Int("participants", len(snapshot)),
	)

	messageID, err := c.notifier.Publish(channel, c.commitText(round, snapshot))
	if err != nil {
		return nil, c.markFailed(round, err)
	}

	round.Status = storage.RoundRevealing
	if err := c.store.UpdateRound(round); err != nil {
		return nil, c.markFailed(round, err)
	}

	hash, err := c.awaitBlockHash(ctx, round, channel, messageID)
	if err != nil {
		return nil, c.markFailed(round, err)
	}

	index := WinnerIndex(hash, len(snapshot))
	winner := snapshot[index]
	settlement := Settle(len(snapshot), c.opts.EntryFee, c.opts.CommissionRateBp)

	finished := time.Now().UTC()
	round.Status = storage.RoundResolved
	round.WinnerTicket = &winner.TicketNumber
	round.WinnerIdentity = winner.Identity
	round.BlockHash = hash.Hex()
	round.TotalBank = settlement.Bank
	round.Commission = settlement.Commission
	round.Prize = settlement.Prize
	round.FinishedAt = &finished
	if err := c.store.UpdateRound(round); err != nil {
		return nil, err
	}

	if err := c.store.ClearParticipants(); err != nil {
		return nil, err
	}

	logger.Info("round resolved",
		zap.Int64("round", round.RoundNumber),
		zap.Int64("winner_ticket", winner.TicketNumber),
		zap.String("block_hash", round.BlockHash),
	)

	if _, err := c.notifier.Publish(channel, c.resultText(round)); err != nil {
		logger.Warn("result announcement failed", zap.Error(err))
	}

	return round, nil
}

// awaitBlockHash polls the target block within the attempt ceiling,
// yielding between polls so enrollment and registry reads stay live.
func (c *Coordinator) awaitBlockHash(ctx context.Context, round *storage.Round, channel int64, messageID int) (hash common.Hash, err error) {
	for attempt := 1; attempt <= c.opts.PollAttempts; attempt++ {
		hash, err = c.ledger.BlockHash(ctx, round.TargetBlockHeight)
		if err == nil {
			return hash, nil
		}
		if !errors.Is(err, ledger.ErrBlockPending) {
			logger.Warn("block hash lookup failed",
				zap.Int64("round", round.RoundNumber),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}

		if attempt%progressEvery == 0 {
			text := c.commitTextShort(round) +
				fmt.Sprintf("\n⏳ Ожидаем блок №%d... (попытка %d/%d)",
					round.TargetBlockHeight, attempt, c.opts.PollAttempts)
			if err := c.notifier.UpdateMessage(channel, messageID, text); err != nil {
				logger.Warn("progress update failed", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return common.Hash{}, ctx.Err()
		case <-time.After(c.opts.PollInterval):
		}
	}

	return common.Hash{}, &RevealTimeoutError{
		RoundNumber: round.RoundNumber,
		Attempts:    c.opts.PollAttempts,
	}
}

// markFailed retires the round number and keeps the registry intact so
// the payments stay valid for a re-triggered draw.
func (c *Coordinator) markFailed(round *storage.Round, cause error) error {
	finished := time.Now().UTC()
	round.Status = storage.RoundFailed
	round.FinishedAt = &finished
	if err := c.store.UpdateRound(round); err != nil {
		logger.Error("failed to persist failed round",
			zap.Int64("round", round.RoundNumber),
			zap.Error(err),
		)
	}

	logger.Warn("round failed",
		zap.Int64("round", round.RoundNumber),
		zap.Error(cause),
	)
	return cause
}

func (c *Coordinator) commitTextShort(round *storage.Round) string {
	return fmt.Sprintf(
		"🎲 Розыгрыш №%d запущен!\n👥 Участников: %d\n🧱 Целевой блок: %d",
		round.RoundNumber, round.ParticipantCount, round.TargetBlockHeight,
	)
}

func (c *Coordinator) commitText(round *storage.Round, snapshot []*storage.Participant) string {
	var sb strings.Builder
	sb.WriteString(c.commitTextShort(round))
	sb.WriteString("\n\n🎟 Билеты:\n")
	for _, participant := range snapshot {
		fmt.Fprintf(&sb, "  №%d — %s\n", participant.TicketNumber, participant.Identity)
	}
	sb.WriteString("\nПобедитель определяется хэшем целевого блока: hash mod ")
	fmt.Fprintf(&sb, "%d. Проверить сможет каждый.", round.ParticipantCount)
	return sb.String()
}

func (c *Coordinator) resultText(round *storage.Round) string {
	decimals := c.opts.TokenDecimals
	return fmt.Sprintf(
		"🏆 Победитель: %s (билет №%d)\n\n"+
			"🧱 Блок %d: %s\n"+
			"👥 Участников: %d\n"+
			"🏦 Общий банк: %s USDT\n"+
			"💸 Комиссия организатора: %s USDT\n"+
			"💰 Выигрыш: %s USDT 🎉\n\n"+
			"🔄 Раунд №%d завершён. Банк обнулён.",
		round.WinnerIdentity, *round.WinnerTicket,
		round.TargetBlockHeight, round.BlockHash,
		round.ParticipantCount,
		FormatAmount(round.TotalBank, decimals),
		FormatAmount(round.Commission, decimals),
		FormatAmount(round.Prize, decimals),
		round.RoundNumber,
	)
}
