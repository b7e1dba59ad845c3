package fixsim

import (
	"go.uber.org/zap"

	"github.com/shopspring/decimal"
)

// Server is a scriptable FIX 4.4 venue simulator: it accepts orders from a
// tradegate initiator, acknowledges, confirms and (per behaviour) fills,
// cancels, replaces or rejects them. Used by cmd/fixsim for end-to-end
// testing against a live gateway.
type Server struct {
	app            *Application
	configFilepath string
	behaviour      Behaviour
}

// Behaviour scripts what the simulated venue does with each new order.
type Behaviour struct {
	// RejectEveryNth rejects every n-th new order; 0 disables.
	RejectEveryNth int
	// FillQty fills that quantity immediately after confirming; zero
	// means confirm-only (the order rests).
	FillQty decimal.Decimal
	// PartialOnly reports fills with OrdStatus=PARTIALLY_FILLED even when
	// the fill exhausts the order, exercising conflicting-signal handling
	// on the gateway side.
	PartialOnly bool
}

func NewServer(configFilepath string, behaviour Behaviour) *Server {
	return &Server{configFilepath: configFilepath, behaviour: behaviour}
}

func (s *Server) Start() error {
	app, err := startApp(s.configFilepath, s.behaviour)
	if err != nil {
		zap.S().Errorf("start fixsim err=%v", err)
		return err
	}
	s.app = app
	return nil
}

func (s *Server) Stop() error {
	if s.app != nil {
		stopApp(s.app)
	}
	return nil
}
