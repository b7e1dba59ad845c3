package fixgateway

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/joripage/go_util/pkg/shardqueue"
	"github.com/quickfixgo/fix44/executionreport"
	"github.com/quickfixgo/fix44/ordercancelreject"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/log/file"
	"github.com/quickfixgo/tag"
	"go.uber.org/zap"
)

// Application implements the quickfix.Application interface for the
// initiator side. Inbound application messages are sharded by the owning
// order so reports for the same order stay ordered while different orders
// fan out.
type Application struct {
	*quickfix.MessageRouter
	gateway    *FixGateway
	shardQueue *shardqueue.Shardqueue
	quickEvent chan bool
}

type inboundMsg struct {
	msg       *quickfix.Message
	sessionID quickfix.SessionID
}

const (
	numShards = 16
	queueSize = 1_000_000
)

func newApplication(gateway *FixGateway) *Application {
	app := &Application{
		MessageRouter: quickfix.NewMessageRouter(),
		gateway:       gateway,
		quickEvent:    make(chan bool, 1),
	}

	app.AddRoute(executionreport.Route(app.onExecutionReport))
	app.AddRoute(ordercancelreject.Route(app.onOrderCancelReject))

	app.shardQueue = shardqueue.NewShardQueue(numShards, queueSize)
	app.shardQueue.Start(func(msg interface{}) error {
		if v, ok := msg.(*inboundMsg); ok {
			if err := app.Route(v.msg, v.sessionID); err != nil {
				zap.S().Warnf("route inbound message fail: %v", err)
			}
		}
		return nil
	})

	return app
}

func startApp(configFilepath string, gateway *FixGateway) (*Application, *quickfix.Initiator, error) {
	cfg, err := os.Open(configFilepath)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening %v, %v", configFilepath, err)
	}
	defer cfg.Close() // nolint

	stringData, readErr := io.ReadAll(cfg)
	if readErr != nil {
		return nil, nil, fmt.Errorf("error reading cfg: %s,", readErr)
	}

	appSettings, err := quickfix.ParseSettings(bytes.NewReader(stringData))
	if err != nil {
		return nil, nil, fmt.Errorf("error reading cfg: %s,", err)
	}

	app := newApplication(gateway)

	logFactory, _ := file.NewLogFactory(appSettings)
	initiator, err := quickfix.NewInitiator(app, quickfix.NewMemoryStoreFactory(), appSettings, logFactory)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create initiator: %s", err)
	}
	if err := initiator.Start(); err != nil {
		return nil, nil, fmt.Errorf("unable to start FIX initiator: %s", err)
	}
	return app, initiator, nil
}

func (a *Application) stop() {
	select {
	case a.quickEvent <- true:
	default:
	}
}

// OnCreate implemented as part of Application interface
func (a *Application) OnCreate(sessionID quickfix.SessionID) {}

// OnLogon implemented as part of Application interface
func (a *Application) OnLogon(sessionID quickfix.SessionID) {
	a.gateway.sessionID = sessionID
	a.gateway.loggedOn.Store(true)
}

// OnLogout implemented as part of Application interface
func (a *Application) OnLogout(sessionID quickfix.SessionID) {
	a.gateway.loggedOn.Store(false)
}

// ToAdmin implemented as part of Application interface
func (a *Application) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {}

// ToApp implemented as part of Application interface
func (a *Application) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}

// FromAdmin implemented as part of Application interface
func (a *Application) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

// FromApp implemented as part of Application interface, uses Router on incoming application messages
func (a *Application) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) (reject quickfix.MessageRejectError) {
	a.shardQueue.Shard(a.getRoutingKey(msg, sessionID), &inboundMsg{msg, sessionID})
	return nil
}

// getRoutingKey derives the shard key from the order the message concerns.
// Every request of one order carries its own ClOrdID (the cancel leg and the
// new leg of an emulated modify included), so the key is the owning order
// resolved through the engine; the venue OrderID covers messages that echo
// no request of ours.
func (a *Application) getRoutingKey(msg *quickfix.Message, sessionID quickfix.SessionID) string {
	for _, t := range []quickfix.Tag{tag.ClOrdID, tag.OrigClOrdID} {
		if s, err := msg.Body.GetString(t); err == nil && s != "" {
			if ordID := a.gateway.engine.OrderIDOfReq(parseClOrdID(s)); ordID != 0 {
				return "ORD:" + strconv.FormatUint(uint64(ordID), 10)
			}
		}
	}
	if orderID, err := msg.Body.GetString(tag.OrderID); err == nil && orderID != "" {
		return orderID
	}
	if msgType, err := msg.Header.GetString(tag.MsgType); err == nil {
		return "MSGTYPE:" + msgType
	}
	return sessionID.String()
}
