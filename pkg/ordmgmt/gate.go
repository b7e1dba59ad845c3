package ordmgmt

import (
	"time"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

// readiness decides whether an indicated request may go onto the wire right
// now. The result is three-valued: OK, Throttled (window full or transport
// down) or OrigBlock (the targeted request is not far enough along for the
// configured pipelining mode).
func (e *Engine) readiness(req *model.Request, now time.Time) model.Ready {
	if !e.proto.IsActive() {
		return model.ReadyThrottled
	}
	// MaxReqsPerPeriod == 0 disables throttling
	if e.cfg.MaxReqsPerPeriod > 0 && !(e.cfg.CancelsNotThrottled && req.Kind.IsCancel()) {
		if e.thr.running(now) >= e.cfg.MaxReqsPerPeriod {
			return model.ReadyThrottled
		}
	}

	switch {
	case req.Kind == model.ReqKindModLegN:
		clx := e.arena.Req(req.Prev)
		if clx == nil || clx.Kind != model.ReqKindModLegC {
			// no paired cancel leg: behaves like a plain new
			return model.ReadyOK
		}
		if e.cfg.PipelineMode == model.PipelineWait2 {
			// strictest: the replaced order must be confirmed gone before
			// its successor shows up
			tgt := e.arena.Req(clx.OrigID)
			if tgt != nil && (tgt.Status == model.ReqStatusCancelled || tgt.Status == model.ReqStatusReplaced) {
				return model.ReadyOK
			}
			return model.ReadyOrigBlock
		}
		if clx.Status >= model.ReqStatusNew {
			return model.ReadyOK
		}
		return model.ReadyOrigBlock

	case req.OrigID != 0:
		tgt := e.arena.Req(req.OrigID)
		if tgt == nil {
			return model.ReadyOK
		}
		if tgt.Status >= model.ReqStatusConfirmed && tgt.Status <= model.ReqStatusPartFilled {
			return model.ReadyOK
		}
		// full pipelining may follow a merely-sent target, but only when
		// the wire format does not need the venue-assigned id
		if e.cfg.PipelineMode == model.PipelineWait0 && !e.cfg.SendExchIDs &&
			tgt.Status >= model.ReqStatusNew && !tgt.Status.IsTerminal() {
			return model.ReadyOK
		}
		return model.ReadyOrigBlock
	}
	return model.ReadyOK
}
