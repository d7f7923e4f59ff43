package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fortuna/internal/config"
	"fortuna/internal/draw"
	"fortuna/internal/logger"
	"fortuna/internal/storage"

	"go.uber.org/zap"
	tb "gopkg.in/tucnak/telebot.v2"
)

const (
	buttonParticipate = "🎟 Участвовать"
	buttonBank        = "📊 Банк"
	buttonMembers     = "👥 Участники"
	buttonDraw        = "🏆 Выбрать победителя"
)

var txidPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)

// Bot is the chat dispatcher: it turns messages into engine requests
// and doubles as the engine's notification sink. All admin
// authorization happens here; the core never checks identities.
type Bot struct {
	tb          *tb.Bot
	cfg         *config.Config
	store       storage.Storage
	verifier    *draw.Verifier
	coordinator *draw.Coordinator
	menu        *tb.ReplyMarkup
}

func New(cfg *config.Config, store storage.Storage, verifier *draw.Verifier) (*Bot, error) {
	inner, err := tb.NewBot(tb.Settings{
		Token:  cfg.TelegramToken,
		Poller: &tb.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}

	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	menu.ReplyKeyboard = [][]tb.ReplyButton{
		{{Text: buttonParticipate}, {Text: buttonBank}, {Text: buttonMembers}},
		{{Text: buttonDraw}},
	}

	b := &Bot{
		tb:       inner,
		cfg:      cfg,
		store:    store,
		verifier: verifier,
		menu:     menu,
	}

	inner.Handle("/start", b.handleStart)
	inner.Handle("/add", b.handleAdd)
	inner.Handle("/reset", b.handleReset)
	inner.Handle("/history", b.handleHistory)
	inner.Handle(tb.OnText, b.handleText)

	return b, nil
}

// SetCoordinator closes the construction loop: the bot is the
// coordinator's notification sink, so the coordinator is built after
// the bot and wired in here.
func (b *Bot) SetCoordinator(c *draw.Coordinator) {
	b.coordinator = c
}

func (b *Bot) Start() {
	logger.Info("bot started")
	b.tb.Start()
}

func (b *Bot) Stop() {
	b.tb.Stop()
}

// Publish implements draw.Notifier.
func (b *Bot) Publish(channel int64, text string) (int, error) {
	msg, err := b.tb.Send(tb.ChatID(channel), text)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// UpdateMessage implements draw.Notifier.
func (b *Bot) UpdateMessage(channel int64, messageID int, text string) error {
	stored := tb.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    channel,
	}
	_, err := b.tb.Edit(stored, text)
	return err
}

func (b *Bot) isAdmin(m *tb.Message) bool {
	return m.Sender != nil && int64(m.Sender.ID) == b.cfg.AdminID
}

// identity is the opaque handle a participant is enrolled under.
func identity(user *tb.User) string {
	if user.Username != "" {
		return "@" + user.Username
	}
	return "id:" + strconv.FormatInt(user.ID, 10)
}

func (b *Bot) reply(m *tb.Message, text string, options ...interface{}) {
	if _, err := b.tb.Send(m.Sender, text, options...); err != nil {
		logger.Warn("reply failed", zap.Error(err))
	}
}

func (b *Bot) handleStart(m *tb.Message) {
	b.reply(m, fmt.Sprintf(
		"🍀 Добро пожаловать в Crypto Fortuna!\n💰 Взнос: %s USDT\n\nВыбери действие 👇",
		draw.FormatAmount(b.cfg.EntryFee, b.cfg.TokenDecimals),
	), b.menu)
}

func (b *Bot) handleText(m *tb.Message) {
	switch m.Text {
	case buttonParticipate:
		b.reply(m, fmt.Sprintf(
			"🎟 Для участия переведи %s USDT\n\n📍 Адрес:\n%s\n\n"+
				"После оплаты пришли сюда TXID перевода 🍀",
			draw.FormatAmount(b.cfg.EntryFee, b.cfg.TokenDecimals),
			b.cfg.ReceivingAddress,
		))
	case buttonBank:
		count, err := b.store.ParticipantCount()
		if err != nil {
			b.replyError(m, err)
			return
		}
		bank := count * b.cfg.EntryFee
		b.reply(m, fmt.Sprintf("📊 Текущий банк: %s USDT",
			draw.FormatAmount(bank, b.cfg.TokenDecimals)))
	case buttonMembers:
		count, err := b.store.ParticipantCount()
		if err != nil {
			b.replyError(m, err)
			return
		}
		b.reply(m, fmt.Sprintf("👥 Всего участников: %d", count))
	case buttonDraw:
		if !b.isAdmin(m) {
			return
		}
		b.startDraw(m)
	default:
		if txidPattern.MatchString(strings.TrimSpace(m.Text)) {
			b.handleTxid(m, strings.TrimSpace(m.Text))
		}
	}
}

func (b *Bot) handleTxid(m *tb.Message, txid string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ticket, _, err := b.verifier.VerifyAndEnroll(ctx, identity(m.Sender), txid)

	var rejection *draw.RejectionError
	switch {
	case err == nil:
		b.reply(m, fmt.Sprintf("✅ Оплата подтверждена! Твой билет — №%d 🍀", ticket))
	case errors.Is(err, storage.ErrAlreadyEnrolled):
		b.reply(m, "🎟 Ты уже участвуешь в текущем раунде!")
	case errors.As(err, &rejection):
		b.reply(m, rejectionText(rejection, b.cfg))
	default:
		b.replyError(m, err)
	}
}

func rejectionText(rejection *draw.RejectionError, cfg *config.Config) string {
	switch rejection.Reason {
	case draw.ReasonAlreadyUsed:
		return "❌ Этот TXID уже использован."
	case draw.ReasonNotFound:
		return "❌ Транзакция не найдена. Проверь TXID и попробуй ещё раз чуть позже."
	case draw.ReasonNoMatchingTransfer:
		return "❌ В этой транзакции нет перевода USDT на адрес розыгрыша."
	case draw.ReasonInsufficientAmount:
		return fmt.Sprintf("❌ Недостаточная сумма: %s USDT, требуется %s USDT.",
			draw.FormatAmount(rejection.Amount, cfg.TokenDecimals),
			draw.FormatAmount(cfg.EntryFee, cfg.TokenDecimals))
	default:
		return "❌ Платёж отклонён."
	}
}

// startDraw kicks the round off in its own goroutine; the reveal wait
// can take minutes and the dispatcher must keep serving messages.
func (b *Bot) startDraw(m *tb.Message) {
	channel := m.Chat.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(b.cfg.PollAttempts+1)*b.cfg.PollInterval+time.Minute)
		defer cancel()

		_, err := b.coordinator.Run(ctx, channel)

		var timeout *draw.RevealTimeoutError
		switch {
		case err == nil:
			// result already announced by the coordinator
		case errors.Is(err, draw.ErrDrawInProgress):
			b.reply(m, "⚠️ Розыгрыш уже идёт.")
		case errors.Is(err, draw.ErrInsufficientParticipants):
			b.reply(m, "⚠️ Недостаточно участников: нужно минимум 2.")
		case errors.As(err, &timeout):
			b.reply(m, fmt.Sprintf(
				"⚠️ Раунд №%d не удалось завершить: целевой блок так и не получен.\n"+
					"Участники сохранены — запусти розыгрыш ещё раз.",
				timeout.RoundNumber))
		default:
			b.replyError(m, err)
		}
	}()
}

func (b *Bot) handleAdd(m *tb.Message) {
	if !b.isAdmin(m) {
		return
	}

	username := strings.TrimSpace(m.Payload)
	if username == "" {
		b.reply(m, "Укажите пользователя: /add @username")
		return
	}

	ticket, err := b.store.EnrollParticipant(username)
	switch {
	case errors.Is(err, storage.ErrAlreadyEnrolled):
		b.reply(m, "❌ Этот участник уже добавлен.")
	case err != nil:
		b.replyError(m, err)
	default:
		b.reply(m, fmt.Sprintf("✅ Участник %s добавлен! Билет №%d", username, ticket))
	}
}

func (b *Bot) handleReset(m *tb.Message) {
	if !b.isAdmin(m) {
		return
	}

	if err := b.store.ClearParticipants(); err != nil {
		b.replyError(m, err)
		return
	}
	b.reply(m, "🔄 Реестр участников очищен. Оплаченные TXID остаются использованными.")
}

func (b *Bot) handleHistory(m *tb.Message) {
	rounds, err := b.store.RecentRounds(5)
	if err != nil {
		b.replyError(m, err)
		return
	}
	stats, err := b.store.Stats()
	if err != nil {
		b.replyError(m, err)
		return
	}

	var sb strings.Builder
	sb.WriteString("📜 Последние раунды:\n")
	if len(rounds) == 0 {
		sb.WriteString("  пока не было\n")
	}
	for _, round := range rounds {
		switch round.Status {
		case storage.RoundResolved:
			fmt.Fprintf(&sb, "  №%d — 🏆 %s, приз %s USDT, блок %d\n",
				round.RoundNumber, round.WinnerIdentity,
				draw.FormatAmount(round.Prize, b.cfg.TokenDecimals),
				round.TargetBlockHeight)
		case storage.RoundFailed:
			fmt.Fprintf(&sb, "  №%d — ⚠️ не завершён\n", round.RoundNumber)
		default:
			fmt.Fprintf(&sb, "  №%d — ⏳ идёт\n", round.RoundNumber)
		}
	}
	fmt.Fprintf(&sb, "\nВсего разыграно: %s USDT за %d раундов",
		draw.FormatAmount(stats.TotalPrize, b.cfg.TokenDecimals), stats.RoundsResolved)

	b.reply(m, sb.String())
}

func (b *Bot) replyError(m *tb.Message, err error) {
	logger.Error("request failed", zap.Error(err))
	b.reply(m, "⚠️ Что-то пошло не так, попробуй позже.")
}
