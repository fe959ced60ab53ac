package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Europeia/eurocore/internal/nation"
	"github.com/Europeia/eurocore/internal/ratelimit"
	"github.com/Europeia/eurocore/internal/remote"
	"github.com/Europeia/eurocore/internal/store"
)

// IntermediateRmbPost carries what the RMB-post worker needs but the
// remote transport does not track itself.
type IntermediateRmbPost struct {
	JobID  int64
	Nation string
	Region string
	Text   string
}

// RmbPostWorker owns a single FIFO, restricted-budget only.
type RmbPostWorker struct {
	cmds chan rmbPostCommand
}

type rmbPostCmdKind int

const (
	rmbPostCmdEnqueue rmbPostCmdKind = iota
	rmbPostCmdQueueDepth
)

type rmbPostCommand struct {
	kind       rmbPostCmdKind
	entry      IntermediateRmbPost
	reply      chan struct{}
	replyDepth chan int
}

// Enqueue submits an intermediate RMB post and waits for acknowledgement
// that it has been queued.
func (w *RmbPostWorker) Enqueue(ctx context.Context, entry IntermediateRmbPost) {
	reply := make(chan struct{}, 1)
	select {
	case w.cmds <- rmbPostCommand{kind: rmbPostCmdEnqueue, entry: entry, reply: reply}:
	case <-ctx.Done():
		return
	}
	select {
	case <-reply:
	case <-ctx.Done():
	}
}

// QueueDepth reports the number of RMB posts currently pending.
func (w *RmbPostWorker) QueueDepth(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case w.cmds <- rmbPostCommand{kind: rmbPostCmdQueueDepth, replyDepth: reply}:
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

// StartRmbPostWorker launches the actor goroutine and returns a handle.
func StartRmbPostWorker(ctx context.Context, limiter *ratelimit.Limiter, nations *nation.Cache, client *remote.Client, db *store.DB, log *zap.Logger) *RmbPostWorker {
	w := &RmbPostWorker{cmds: make(chan rmbPostCommand, commandChannelDepth)}
	go w.run(ctx, limiter, nations, client, db, log)
	return w
}

func (w *RmbPostWorker) run(ctx context.Context, limiter *ratelimit.Limiter, nations *nation.Cache, client *remote.Client, db *store.DB, log *zap.Logger) {
	var queue []IntermediateRmbPost
	ticker := time.NewTicker(Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.cmds:
			switch cmd.kind {
			case rmbPostCmdEnqueue:
				queue = append(queue, cmd.entry)
				cmd.reply <- struct{}{}
			case rmbPostCmdQueueDepth:
				cmd.replyDepth <- len(queue)
			}
		case <-ticker.C:
			queue = tryPostRmbPost(ctx, queue, limiter, nations, client, db, log)
		}
	}
}

func tryPostRmbPost(ctx context.Context, queue []IntermediateRmbPost, limiter *ratelimit.Limiter, nations *nation.Cache, client *remote.Client, db *store.DB, log *zap.Logger) []IntermediateRmbPost {
	for i, entry := range queue {
		target := ratelimit.RestrictedTarget(entry.Nation)
		if limiter.Peek(ctx, target) > Period {
			continue
		}
		remaining := make([]IntermediateRmbPost, 0, len(queue)-1)
		remaining = append(remaining, queue[:i]...)
		remaining = append(remaining, queue[i+1:]...)
		go postRmbPost(ctx, entry, nations, client, db, log)
		return remaining
	}
	return queue
}

func postRmbPost(ctx context.Context, entry IntermediateRmbPost, nations *nation.Cache, client *remote.Client, db *store.DB, log *zap.Logger) {
	password, err := nations.GetPassword(ctx, entry.Nation)
	if err != nil {
		failRmbPost(ctx, db, log, entry, err)
		return
	}
	pin, err := nations.GetPin(ctx, entry.Nation)
	if err != nil {
		failRmbPost(ctx, db, log, entry, err)
		return
	}

	req := remote.RmbPostRequest{
		Nation:   entry.Nation,
		Password: password,
		Region:   entry.Region,
		Text:     entry.Text,
	}

	id, err := client.RmbPost(ctx, req, pin)
	if err != nil {
		failRmbPost(ctx, db, log, entry, err)
		return
	}

	if err := db.UpdateRmbPostJobSuccess(ctx, entry.JobID, id, remote.EncodeText(entry.Text)); err != nil {
		log.Error("updating rmbpost job to success", zap.Int64("job_id", entry.JobID), zap.Error(err))
	}
}

func failRmbPost(ctx context.Context, db *store.DB, log *zap.Logger, entry IntermediateRmbPost, cause error) {
	if err := db.UpdateRmbPostJobError(ctx, entry.JobID, cause.Error()); err != nil {
		log.Error("updating rmbpost job to error", zap.Int64("job_id", entry.JobID), zap.Error(err))
	}
}
