package ordmgmt

import (
	"context"
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/zap"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

// indicationQueue holds requests the gate has not yet admitted, in creation
// order. Membership is deduplicated so re-memoising an already parked
// request is a no-op.
type indicationQueue struct {
	q      deque.Deque[model.ReqID]
	queued map[model.ReqID]struct{}
}

func newIndicationQueue() *indicationQueue {
	return &indicationQueue{queued: make(map[model.ReqID]struct{})}
}

func (iq *indicationQueue) memoise(id model.ReqID) bool {
	if _, ok := iq.queued[id]; ok {
		return false
	}
	iq.queued[id] = struct{}{}
	iq.q.PushBack(id)
	return true
}

func (iq *indicationQueue) prune(id model.ReqID) {
	delete(iq.queued, id)
	// the deque entry is dropped lazily by the next pass
}

func (iq *indicationQueue) len() int { return len(iq.queued) }

// sendIndicationsOnEvent is the event-driven retry path: when the target's
// status advances its immediate dependents get one send attempt right away.
func (e *Engine) sendIndicationsOnEvent(ctx context.Context, target *model.Request, now time.Time) {
	n := e.inds.q.Len()
	for i := 0; i < n; i++ {
		id := e.inds.q.PopFront()
		if _, live := e.inds.queued[id]; !live {
			continue // pruned earlier
		}
		req := e.arena.Req(id)
		if req.Status != model.ReqStatusIndicated {
			delete(e.inds.queued, id)
			continue
		}
		if !e.dependsOn(req, target) {
			e.inds.q.PushBack(id)
			continue
		}
		if e.readiness(req, now) == model.ReadyOK {
			delete(e.inds.queued, id)
			e.sendReq(ctx, e.arena.Order(req.OrderID), req, now)
		} else {
			e.inds.q.PushBack(id)
		}
	}
}

// sendIndicationsOnTimer is the periodic retry path: every parked request is
// re-evaluated in order, stopping early at the first throttled answer since
// everything behind it would be throttled too.
func (e *Engine) sendIndicationsOnTimer(ctx context.Context, now time.Time) {
	n := e.inds.q.Len()
	stopped := false
	for i := 0; i < n; i++ {
		id := e.inds.q.PopFront()
		if _, live := e.inds.queued[id]; !live {
			continue
		}
		req := e.arena.Req(id)
		if req.Status != model.ReqStatusIndicated {
			delete(e.inds.queued, id)
			continue
		}
		if stopped {
			e.inds.q.PushBack(id)
			continue
		}
		switch e.readiness(req, now) {
		case model.ReadyOK:
			delete(e.inds.queued, id)
			e.sendReq(ctx, e.arena.Order(req.OrderID), req, now)
		case model.ReadyThrottled:
			stopped = true
			e.inds.q.PushBack(id)
		default: // OrigBlock: keep waiting for the event-driven release
			e.inds.q.PushBack(id)
		}
	}
	if err := e.flush(ctx); err != nil {
		e.log.Warn("flush after timer pass failed", zap.Error(err))
	}
}

func (e *Engine) dependsOn(req, target *model.Request) bool {
	if req.OrigID == target.ID {
		return true
	}
	if req.Kind == model.ReqKindModLegN {
		if req.Prev == target.ID {
			return true
		}
		// Wait2 releases the new leg on the cancellation of the cancel
		// leg's own target
		if clx := e.arena.Req(req.Prev); clx != nil && clx.OrigID == target.ID {
			return true
		}
	}
	return false
}

func (e *Engine) runPusher(ctx context.Context) {
	defer close(e.pusherDone)
	tick := time.NewTicker(e.cfg.IndicationRetry())
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			e.mu.Lock()
			if e.inds.len() > 0 {
				e.sendIndicationsOnTimer(ctx, now)
			}
			e.mu.Unlock()
		}
	}
}

