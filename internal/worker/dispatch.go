package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Europeia/eurocore/internal/nation"
	"github.com/Europeia/eurocore/internal/ratelimit"
	"github.com/Europeia/eurocore/internal/remote"
	"github.com/Europeia/eurocore/internal/store"
)

// IntermediateDispatch carries what the dispatch worker needs but the
// remote transport does not track itself. Action distinguishes
// add/edit/remove; ID is nil for add, set for edit/remove;
// Title/Text/Category/Subcategory are set for add/edit only.
type IntermediateDispatch struct {
	JobID       int64
	Nation      string
	Author      string
	Action      store.DispatchAction
	ID          *int32
	Title       *string
	Text        *string
	Category    *int16
	Subcategory *int16
}

func (d IntermediateDispatch) target() ratelimit.Target {
	if d.Action == store.DispatchAdd {
		return ratelimit.RestrictedTarget(d.Nation)
	}
	return ratelimit.StandardTarget()
}

// DispatchWorker owns a FIFO of pending dispatch actions,
// drained by the head-of-queue ready-pick policy.
type DispatchWorker struct {
	cmds chan dispatchCommand
}

type dispatchCmdKind int

const (
	dispatchCmdEnqueue dispatchCmdKind = iota
	dispatchCmdQueueDepth
)

type dispatchCommand struct {
	kind       dispatchCmdKind
	entry      IntermediateDispatch
	reply      chan struct{}
	replyDepth chan int
}

// Enqueue submits an intermediate dispatch action and waits for the
// worker's acknowledgement that it has been queued — not that the remote
// call has completed.
func (w *DispatchWorker) Enqueue(ctx context.Context, entry IntermediateDispatch) {
	reply := make(chan struct{}, 1)
	select {
	case w.cmds <- dispatchCommand{kind: dispatchCmdEnqueue, entry: entry, reply: reply}:
	case <-ctx.Done():
		return
	}
	select {
	case <-reply:
	case <-ctx.Done():
	}
}

// QueueDepth reports the number of dispatch actions currently pending.
func (w *DispatchWorker) QueueDepth(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case w.cmds <- dispatchCommand{kind: dispatchCmdQueueDepth, replyDepth: reply}:
	case <-ctx.Done():
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-ctx.Done():
		return 0
	}
}

// StartDispatchWorker launches the actor goroutine and returns a handle.
func StartDispatchWorker(ctx context.Context, limiter *ratelimit.Limiter, nations *nation.Cache, client *remote.Client, db *store.DB, log *zap.Logger) *DispatchWorker {
	w := &DispatchWorker{cmds: make(chan dispatchCommand, commandChannelDepth)}
	go w.run(ctx, limiter, nations, client, db, log)
	return w
}

func (w *DispatchWorker) run(ctx context.Context, limiter *ratelimit.Limiter, nations *nation.Cache, client *remote.Client, db *store.DB, log *zap.Logger) {
	var queue []IntermediateDispatch
	ticker := time.NewTicker(Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.cmds:
			switch cmd.kind {
			case dispatchCmdEnqueue:
				queue = append(queue, cmd.entry)
				cmd.reply <- struct{}{}
			case dispatchCmdQueueDepth:
				cmd.replyDepth <- len(queue)
			}
		case <-ticker.C:
			queue = tryPostDispatch(ctx, queue, limiter, nations, client, db, log)
		}
	}
}

// tryPostDispatch implements the head-of-queue ready-pick policy: scan in
// insertion order, post the first entry whose required budget peek is
// within one tick, and return the queue with that entry removed. At most
// one entry is posted per tick.
func tryPostDispatch(ctx context.Context, queue []IntermediateDispatch, limiter *ratelimit.Limiter, nations *nation.Cache, client *remote.Client, db *store.DB, log *zap.Logger) []IntermediateDispatch {
	for i, entry := range queue {
		if limiter.Peek(ctx, entry.target()) > Period {
			continue
		}
		remaining := make([]IntermediateDispatch, 0, len(queue)-1)
		remaining = append(remaining, queue[:i]...)
		remaining = append(remaining, queue[i+1:]...)
		go postDispatch(ctx, entry, limiter, nations, client, db, log)
		return remaining
	}
	return queue
}

func postDispatch(ctx context.Context, entry IntermediateDispatch, limiter *ratelimit.Limiter, nations *nation.Cache, client *remote.Client, db *store.DB, log *zap.Logger) {
	password, err := nations.GetPassword(ctx, entry.Nation)
	if err != nil {
		failDispatch(ctx, db, log, entry, err)
		return
	}
	pin, err := nations.GetPin(ctx, entry.Nation)
	if err != nil {
		failDispatch(ctx, db, log, entry, err)
		return
	}

	req := remote.DispatchRequest{
		Nation:      entry.Nation,
		Password:    password,
		Action:      string(entry.Action),
		ID:          entry.ID,
		Title:       entry.Title,
		Text:        entry.Text,
		Category:    entry.Category,
		Subcategory: entry.Subcategory,
	}

	id, err := client.Dispatch(ctx, req, pin, entry.target())
	if err != nil {
		failDispatch(ctx, db, log, entry, err)
		return
	}

	if err := db.UpdateDispatchJobSuccess(ctx, entry.JobID, id); err != nil {
		log.Error("updating dispatch job to success", zap.Int64("job_id", entry.JobID), zap.Error(err))
		return
	}

	if err := mirrorDispatchContent(ctx, db, entry, id); err != nil {
		log.Error("mirroring dispatch content", zap.Int64("job_id", entry.JobID), zap.Int32("dispatch_id", id), zap.Error(err))
	}
}

func mirrorDispatchContent(ctx context.Context, db *store.DB, entry IntermediateDispatch, dispatchID int32) error {
	switch entry.Action {
	case store.DispatchAdd:
		if err := db.InsertDispatchHeader(ctx, dispatchID, entry.Nation); err != nil {
			return err
		}
		return db.InsertDispatchContent(ctx, dispatchID, *entry.Category, *entry.Subcategory, *entry.Title, remote.EncodeText(*entry.Text), entry.Author)
	case store.DispatchEdit:
		return db.InsertDispatchContent(ctx, dispatchID, *entry.Category, *entry.Subcategory, *entry.Title, remote.EncodeText(*entry.Text), entry.Author)
	case store.DispatchRemove:
		return db.SetDispatchInactive(ctx, dispatchID)
	default:
		return fmt.Errorf("worker: unknown dispatch action %q", entry.Action)
	}
}

func failDispatch(ctx context.Context, db *store.DB, log *zap.Logger, entry IntermediateDispatch, cause error) {
	if err := db.UpdateDispatchJobFailure(ctx, entry.JobID, cause.Error()); err != nil {
		log.Error("updating dispatch job to failure", zap.Int64("job_id", entry.JobID), zap.Error(err))
	}
}
