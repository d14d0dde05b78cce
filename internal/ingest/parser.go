// Package ingest connects to the venue trade stream, parses frames and
// hands validated trades to the pipeline.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"whale_watcher/internal/core"
	apperrors "whale_watcher/pkg/errors"
)

type frameKind int

const (
	frameOther frameKind = iota
	frameTrade
	frameAck
	frameReject
)

// frame is one classified stream message.
type frame struct {
	kind      frameKind
	trade     core.TradeEvent
	ackID     int64
	rejectMsg string
}

type wsError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// wsTradeFrame is the venue's @trade payload. Numeric fields arrive as
// strings and must stay exact.
type wsTradeFrame struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

var jsonNull = []byte("null")

// parseFrame classifies one raw stream message. Unknown event types
// are frameOther, not errors; malformed JSON and bad trade fields are.
func parseFrame(exchange string, raw []byte) (frame, error) {
	var probe struct {
		EventType string          `json:"e"`
		Stream    string          `json:"stream"`
		Data      json.RawMessage `json:"data"`
		Result    json.RawMessage `json:"result"`
		ID        int64           `json:"id"`
		Error     *wsError        `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return frame{}, fmt.Errorf("%w: %v", apperrors.ErrParse, err)
	}

	// Combined-stream envelope: unwrap and classify the payload.
	if probe.Stream != "" && len(probe.Data) > 0 {
		return parseFrame(exchange, probe.Data)
	}

	if probe.Error != nil {
		return frame{kind: frameReject, ackID: probe.ID, rejectMsg: probe.Error.Msg}, nil
	}

	if probe.EventType == "trade" {
		return parseTrade(exchange, raw)
	}
	if probe.EventType != "" {
		return frame{kind: frameOther}, nil
	}

	if probe.ID != 0 {
		// {"result":null,"id":N} acknowledges the subscribe request.
		if len(probe.Result) == 0 || bytes.Equal(probe.Result, jsonNull) {
			return frame{kind: frameAck, ackID: probe.ID}, nil
		}
		return frame{kind: frameReject, ackID: probe.ID, rejectMsg: string(probe.Result)}, nil
	}

	return frame{kind: frameOther}, nil
}

func parseTrade(exchange string, raw []byte) (frame, error) {
	var tf wsTradeFrame
	if err := json.Unmarshal(raw, &tf); err != nil {
		return frame{}, fmt.Errorf("%w: trade frame: %v", apperrors.ErrParse, err)
	}

	price, err := decimal.NewFromString(tf.Price)
	if err != nil {
		return frame{}, fmt.Errorf("%w: trade price %q: %v", apperrors.ErrParse, tf.Price, err)
	}
	qty, err := decimal.NewFromString(tf.Quantity)
	if err != nil {
		return frame{}, fmt.Errorf("%w: trade quantity %q: %v", apperrors.ErrParse, tf.Quantity, err)
	}

	// Buyer-is-maker means the aggressor sold into the book.
	side := core.SideBuy
	if tf.IsBuyerMaker {
		side = core.SideSell
	}

	trade := core.TradeEvent{
		Exchange:  exchange,
		Symbol:    strings.ToUpper(tf.Symbol),
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Amount:    price.Mul(qty),
		TradeTime: time.UnixMilli(tf.TradeTime).UTC(),
		TradeID:   tf.TradeID,
		IsTaker:   true,
	}
	if err := trade.Validate(); err != nil {
		return frame{}, fmt.Errorf("%w: %v", apperrors.ErrParse, err)
	}
	return frame{kind: frameTrade, trade: trade}, nil
}

// subscribeRequest is the stream subscription message. The id echoes
// back in the acknowledgement.
type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

func newSubscribeRequest(symbols []string, id int64) subscribeRequest {
	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		params = append(params, strings.ToLower(s)+"@trade")
	}
	return subscribeRequest{Method: "SUBSCRIBE", Params: params, ID: id}
}
