package ordmgmt

import "github.com/shopspring/decimal"

// TriState carries an optional protocol hint: the venue either said yes,
// said no, or said nothing.
type TriState int

const (
	TriUnknown TriState = iota
	TriTrue
	TriFalse
)

// classifyFill disambiguates a complete from a partial fill out of up to
// three independent signals: the locally computed remainder (weight 1) and
// the venue's leaves-qty and filled-flag hints (weight 2 each, they come
// straight from the protocol). The majority decides; ties are structurally
// impossible with these weights.
//
// Two corrections guard the arithmetic regardless of the vote:
//   - a Partial verdict with a zero computed remainder is forced to Complete
//     (nothing left to fill);
//   - on Complete the trade qty is clamped to the prior leaves qty, so the
//     sum of recorded trade quantities never exceeds the request's quantity.
func classifyFill(qty, priorLeaves decimal.Decimal, leavesHint *decimal.Decimal,
	filledHint TriState) (complete bool, lastQty, leaves decimal.Decimal) {

	rem := priorLeaves.Sub(qty)

	var completeVotes, partialVotes int
	if rem.Sign() <= 0 {
		completeVotes++
	} else {
		partialVotes++
	}
	if leavesHint != nil {
		if leavesHint.Sign() <= 0 {
			completeVotes += 2
		} else {
			partialVotes += 2
		}
	}
	switch filledHint {
	case TriTrue:
		completeVotes += 2
	case TriFalse:
		partialVotes += 2
	}

	complete = completeVotes > partialVotes
	if !complete && rem.Sign() <= 0 {
		complete = true
	}

	if complete {
		return true, priorLeaves, decimal.Zero
	}
	return false, qty, rem
}
