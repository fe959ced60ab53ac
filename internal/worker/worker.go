// Package worker implements the per-class worker actors: each
// owns an in-memory FIFO (two for telegrams), ticks every Period, and posts
// the first ready entry per tick via a head-of-queue ready-pick policy.
package worker

import "time"

// Period is the worker tick interval.
const Period = 250 * time.Millisecond

// commandChannelDepth bounds every worker's inbox.
const commandChannelDepth = 16
