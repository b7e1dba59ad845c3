package fixgateway

import (
	"strconv"

	"github.com/quickfixgo/enum"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

var (
	sideMapping = map[model.OrderSide]enum.Side{
		model.OrderSideBuy:  enum.Side_BUY,
		model.OrderSideSell: enum.Side_SELL,
	}

	ordTypeMapping = map[model.OrderType]enum.OrdType{
		model.OrderTypeLimit:  enum.OrdType_LIMIT,
		model.OrderTypeMarket: enum.OrdType_MARKET,
		model.OrderTypeStop:   enum.OrdType_STOP,
	}

	tifMapping = map[model.OrderTimeInForce]enum.TimeInForce{
		model.OrderTimeInForceDAY: enum.TimeInForce_DAY,
		model.OrderTimeInForceIOC: enum.TimeInForce_IMMEDIATE_OR_CANCEL,
		model.OrderTimeInForceFOK: enum.TimeInForce_FILL_OR_KILL,
		model.OrderTimeInForceGTC: enum.TimeInForce_GOOD_TILL_CANCEL,
		model.OrderTimeInForceGTD: enum.TimeInForce_GOOD_TILL_DATE,
	}
)

// clOrdID carries our request id on the wire and back.
func clOrdID(id model.ReqID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseClOrdID(s string) model.ReqID {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return model.ReqID(v)
}
