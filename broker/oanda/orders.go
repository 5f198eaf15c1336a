package oanda

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rustyeddy/carry/broker"
	"go.uber.org/zap"
)

type clientExtensions struct {
	ID string `json:"id,omitempty"`
}

type marketOrder struct {
	Type             string            `json:"type"`
	Instrument       string            `json:"instrument"`
	Units            string            `json:"units"`
	TimeInForce      string            `json:"timeInForce"`
	PositionFill     string            `json:"positionFill"`
	ClientExtensions *clientExtensions `json:"clientExtensions,omitempty"`
}

type orderRequest struct {
	Order marketOrder `json:"order"`
}

type fillTransaction struct {
	ID          string `json:"id"`
	OrderID     string `json:"orderID"`
	Instrument  string `json:"instrument"`
	Units       string `json:"units"`
	Price       string `json:"price"`
	Time        string `json:"time"`
	TradeOpened *struct {
		TradeID string `json:"tradeID"`
	} `json:"tradeOpened"`
	TradesClosed []struct {
		TradeID string `json:"tradeID"`
	} `json:"tradesClosed"`
}

type cancelTransaction struct {
	Reason string `json:"reason"`
}

type orderResponse struct {
	OrderFillTransaction   *fillTransaction   `json:"orderFillTransaction"`
	OrderCancelTransaction *cancelTransaction `json:"orderCancelTransaction"`
}

// PlaceMarketOrder submits a fill-or-kill market order. A cancelled fill
// and a 4xx reply both come back as *broker.RejectError.
func (c *Client) PlaceMarketOrder(ctx context.Context, req broker.MarketOrderRequest) (broker.OrderResult, error) {
	body := orderRequest{Order: marketOrder{
		Type:         "MARKET",
		Instrument:   req.Instrument,
		Units:        strconv.FormatInt(req.Units, 10),
		TimeInForce:  "FOK",
		PositionFill: "DEFAULT",
	}}
	if req.ClientID != "" {
		body.Order.ClientExtensions = &clientExtensions{ID: req.ClientID}
	}

	var resp orderResponse
	err := c.write(ctx, http.MethodPost, c.accountPath("/orders"), body, &resp)
	if err != nil {
		return broker.OrderResult{}, asReject(err, req.Instrument, req.Units)
	}
	if resp.OrderCancelTransaction != nil {
		return broker.OrderResult{}, &broker.RejectError{
			Instrument: req.Instrument,
			Units:      req.Units,
			Reason:     resp.OrderCancelTransaction.Reason,
		}
	}
	if resp.OrderFillTransaction == nil {
		return broker.OrderResult{}, fmt.Errorf("order %s %d: no fill in response", req.Instrument, req.Units)
	}

	res, err := fillResult(resp.OrderFillTransaction)
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("order %s %d: %w", req.Instrument, req.Units, err)
	}
	if res.OrderID == "" {
		res.OrderID = req.ClientID
	}
	c.log.Info("order filled",
		zap.String("instrument", res.Instrument),
		zap.Int64("units", res.Units),
		zap.String("price", res.Price.String()),
		zap.String("trade_id", res.TradeID))
	return res, nil
}

type closeRequest struct {
	Units string `json:"units"`
}

// CloseTrade closes tradeID. units is broker.CloseAll or a positive count.
func (c *Client) CloseTrade(ctx context.Context, tradeID, units string) (broker.OrderResult, error) {
	if units == "" {
		units = broker.CloseAll
	}
	path := c.accountPath("/trades/%s/close", url.PathEscape(tradeID))

	var resp orderResponse
	if err := c.write(ctx, http.MethodPut, path, closeRequest{Units: units}, &resp); err != nil {
		return broker.OrderResult{}, fmt.Errorf("close trade %s: %w", tradeID, asReject(err, "", 0))
	}
	if resp.OrderCancelTransaction != nil {
		return broker.OrderResult{}, &broker.RejectError{Reason: resp.OrderCancelTransaction.Reason}
	}
	if resp.OrderFillTransaction == nil {
		return broker.OrderResult{}, fmt.Errorf("close trade %s: no fill in response", tradeID)
	}

	res, err := fillResult(resp.OrderFillTransaction)
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("close trade %s: %w", tradeID, err)
	}
	res.TradeID = tradeID
	return res, nil
}

func fillResult(f *fillTransaction) (broker.OrderResult, error) {
	var p parser
	res := broker.OrderResult{
		OrderID:       f.OrderID,
		TransactionID: f.ID,
		Instrument:    f.Instrument,
		Units:         p.units("units", f.Units),
		Price:         p.num("price", f.Price),
		Time:          p.stamp("time", f.Time),
	}
	switch {
	case f.TradeOpened != nil:
		res.TradeID = f.TradeOpened.TradeID
	case len(f.TradesClosed) > 0:
		res.TradeID = f.TradesClosed[0].TradeID
	}
	return res, p.err
}

// asReject turns a 4xx reply into a RejectError. Transport errors and 5xx
// are returned unchanged.
func asReject(err error, instrument string, units int64) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode >= 500 {
		return err
	}
	reason := apiErr.RejectReason
	if reason == "" {
		reason = apiErr.ErrorCode
	}
	if reason == "" {
		reason = apiErr.Error()
	}
	return &broker.RejectError{Instrument: instrument, Units: units, Reason: reason}
}
