package statestore

import "context"

// State holds the persistent counters of one venue connection. The id
// counters must survive restarts so a new run never reuses an order or
// request id the venue has already seen; the sequence numbers track the
// wire session.
type State struct {
	NextOrdN uint64 `json:"next_ord_n"`
	NextReqN uint64 `json:"next_req_n"`
	NextTrdN uint64 `json:"next_trd_n"`
	TxSN     int64  `json:"tx_sn"`
	RxSN     int64  `json:"rx_sn"`
}

// Normalize applies the restart rules against configured initial values:
// id counters only ever move forward, sequence numbers may be forced down
// by an explicit session reset.
func (s *State) Normalize(init State) {
	if s.NextOrdN < init.NextOrdN {
		s.NextOrdN = init.NextOrdN
	}
	if s.NextReqN < init.NextReqN {
		s.NextReqN = init.NextReqN
	}
	if s.NextTrdN < init.NextTrdN {
		s.NextTrdN = init.NextTrdN
	}
	if init.TxSN > 1 && s.TxSN > init.TxSN {
		s.TxSN = init.TxSN
	}
	if init.RxSN > 1 && s.RxSN > init.RxSN {
		s.RxSN = init.RxSN
	}
}

// Store loads and checkpoints a named State.
type Store interface {
	Load(ctx context.Context, name string) (State, error)
	Save(ctx context.Context, name string, st State) error
}
