package worker

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Europeia/eurocore/internal/ratelimit"
	"github.com/Europeia/eurocore/internal/remote"
)

// normalizeRecipient lower-cases and replaces spaces with underscores.
func normalizeRecipient(recipient string) string {
	return strings.ReplaceAll(strings.ToLower(recipient), " ", "_")
}

// TelegramKind distinguishes the two telegram queues.
type TelegramKind int

const (
	Standard TelegramKind = iota
	Recruitment
)

// Telegram carries everything the worker and the remote transport need;
// it has no persistent job record — telegram sends are fire-and-forget.
type Telegram struct {
	Sender     string
	Recipient  string
	TelegramID string
	SecretKey  string
	Kind       TelegramKind
}

func (t Telegram) target() ratelimit.Target {
	if t.Kind == Recruitment {
		return ratelimit.RecruitmentTarget(t.Sender)
	}
	return ratelimit.TelegramTarget(t.Sender)
}

func (t Telegram) normalizedRecipient() string {
	return normalizeRecipient(t.Recipient)
}

// TelegramWorker owns two FIFOs, recruitment scanned first.
type TelegramWorker struct {
	cmds chan telegramCommand
}

type telegramCmdKind int

const (
	telegramCmdEnqueue telegramCmdKind = iota
	telegramCmdDelete
	telegramCmdList
	telegramCmdQueueDepths
)

// QueueDepths reports the number of pending telegrams in each queue.
type QueueDepths struct {
	Recruitment int
	Standard    int
}

type telegramCommand struct {
	kind       telegramCmdKind
	entry      Telegram
	header     string // TelegramID to delete
	replyOK    chan struct{}
	replyLs    chan []Telegram
	replyDepth chan QueueDepths
}

// Enqueue submits a telegram and waits for acknowledgement that it has
// been queued.
func (w *TelegramWorker) Enqueue(ctx context.Context, entry Telegram) {
	reply := make(chan struct{}, 1)
	select {
	case w.cmds <- telegramCommand{kind: telegramCmdEnqueue, entry: entry, replyOK: reply}:
	case <-ctx.Done():
		return
	}
	select {
	case <-reply:
	case <-ctx.Done():
	}
}

// Delete removes a pending telegram (by telegram id) from whichever queue
// holds it, before it is posted. A no-op if already posted or unknown.
func (w *TelegramWorker) Delete(ctx context.Context, telegramID string) {
	reply := make(chan struct{}, 1)
	select {
	case w.cmds <- telegramCommand{kind: telegramCmdDelete, header: telegramID, replyOK: reply}:
	case <-ctx.Done():
		return
	}
	select {
	case <-reply:
	case <-ctx.Done():
	}
}

// List returns every telegram still pending across both queues.
func (w *TelegramWorker) List(ctx context.Context) []Telegram {
	reply := make(chan []Telegram, 1)
	select {
	case w.cmds <- telegramCommand{kind: telegramCmdList, replyLs: reply}:
	case <-ctx.Done():
		return nil
	}
	select {
	case r := <-reply:
		return r
	case <-ctx.Done():
		return nil
	}
}

// QueueDepths reports the number of telegrams currently pending in each
// queue.
func (w *TelegramWorker) QueueDepths(ctx context.Context) QueueDepths {
	reply := make(chan QueueDepths, 1)
	select {
	case w.cmds <- telegramCommand{kind: telegramCmdQueueDepths, replyDepth: reply}:
	case <-ctx.Done():
		return QueueDepths{}
	}
	select {
	case r := <-reply:
		return r
	case <-ctx.Done():
		return QueueDepths{}
	}
}

// StartTelegramWorker launches the actor goroutine and returns a handle.
func StartTelegramWorker(ctx context.Context, limiter *ratelimit.Limiter, client *remote.Client, log *zap.Logger) *TelegramWorker {
	w := &TelegramWorker{cmds: make(chan telegramCommand, commandChannelDepth)}
	go w.run(ctx, limiter, client, log)
	return w
}

func (w *TelegramWorker) run(ctx context.Context, limiter *ratelimit.Limiter, client *remote.Client, log *zap.Logger) {
	var recruitment, standard []Telegram
	ticker := time.NewTicker(Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.cmds:
			switch cmd.kind {
			case telegramCmdEnqueue:
				if cmd.entry.Kind == Recruitment {
					recruitment = append(recruitment, cmd.entry)
				} else {
					standard = append(standard, cmd.entry)
				}
				cmd.replyOK <- struct{}{}
			case telegramCmdDelete:
				recruitment = removeTelegram(recruitment, cmd.header)
				standard = removeTelegram(standard, cmd.header)
				cmd.replyOK <- struct{}{}
			case telegramCmdList:
				all := make([]Telegram, 0, len(recruitment)+len(standard))
				all = append(all, recruitment...)
				all = append(all, standard...)
				cmd.replyLs <- all
			case telegramCmdQueueDepths:
				cmd.replyDepth <- QueueDepths{Recruitment: len(recruitment), Standard: len(standard)}
			}
		case <-ticker.C:
			recruitment, standard = tryPostTelegram(ctx, recruitment, standard, limiter, client, log)
		}
	}
}

func removeTelegram(queue []Telegram, telegramID string) []Telegram {
	for i, t := range queue {
		if t.TelegramID == telegramID {
			out := make([]Telegram, 0, len(queue)-1)
			out = append(out, queue[:i]...)
			out = append(out, queue[i+1:]...)
			return out
		}
	}
	return queue
}

// tryPostTelegram implements head-of-queue ready-pick with recruitment
// scanned before standard.
func tryPostTelegram(ctx context.Context, recruitment, standard []Telegram, limiter *ratelimit.Limiter, client *remote.Client, log *zap.Logger) ([]Telegram, []Telegram) {
	if idx := firstReady(ctx, recruitment, limiter); idx >= 0 {
		entry := recruitment[idx]
		remaining := make([]Telegram, 0, len(recruitment)-1)
		remaining = append(remaining, recruitment[:idx]...)
		remaining = append(remaining, recruitment[idx+1:]...)
		go postTelegram(ctx, entry, client, log)
		return remaining, standard
	}
	if idx := firstReady(ctx, standard, limiter); idx >= 0 {
		entry := standard[idx]
		remaining := make([]Telegram, 0, len(standard)-1)
		remaining = append(remaining, standard[:idx]...)
		remaining = append(remaining, standard[idx+1:]...)
		go postTelegram(ctx, entry, client, log)
		return recruitment, remaining
	}
	return recruitment, standard
}

func firstReady(ctx context.Context, queue []Telegram, limiter *ratelimit.Limiter) int {
	for i, entry := range queue {
		if limiter.Peek(ctx, entry.target()) <= Period {
			return i
		}
	}
	return -1
}

func postTelegram(ctx context.Context, entry Telegram, client *remote.Client, log *zap.Logger) {
	req := remote.TelegramRequest{
		Sender:     entry.Sender,
		TelegramID: entry.TelegramID,
		SecretKey:  entry.SecretKey,
		Recipient:  entry.normalizedRecipient(),
		Target:     entry.target(),
	}
	if err := client.Telegram(ctx, req); err != nil {
		log.Error("sending telegram", zap.String("telegram_id", entry.TelegramID), zap.Error(err))
	}
}
