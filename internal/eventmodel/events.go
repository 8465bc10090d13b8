// Package eventmodel provides typed domain objects for the market events the
// signal engine consumes, and the intake parsing that turns a raw bus
// message into one of them.
package eventmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atlas-desktop/signal-engine/pkg/types"
	"github.com/shopspring/decimal"
)

// StreamKind classifies an inbound stream tag.
type StreamKind string

const (
	StreamDepth   StreamKind = "depth"
	StreamTrade   StreamKind = "trade"
	StreamTicker  StreamKind = "ticker"
	StreamUnknown StreamKind = "unknown"
)

// Sentinel errors intake classifies payloads into. Callers count and drop
// on any of these; none of them are propagated to the caller of Dispatch.
var (
	ErrParse          = errors.New("eventmodel: malformed payload")
	ErrUnknownStream  = errors.New("eventmodel: unknown stream")
	ErrMalformedDepth = errors.New("eventmodel: depth snapshot missing levels")
)

// Envelope is the transport wrapper every inbound message carries.
type Envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Unwrap extracts the stream tag and inner payload from a message body. A
// combined-stream body carries its own {"stream", "data"} envelope; a bare
// payload falls back to the bus subject as the stream tag.
func Unwrap(subject string, body []byte) (stream string, payload []byte) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Stream != "" && len(env.Data) > 0 {
		return env.Stream, env.Data
	}
	return subject, body
}

// ClassifyStream maps a stream tag to its StreamKind by substring match, as
// required by the intake dispatch contract: "@depth" -> depth, "@trade" ->
// trade, "@ticker" -> ticker, anything else -> unknown.
func ClassifyStream(stream string) StreamKind {
	switch {
	case strings.Contains(stream, "@depth"):
		return StreamDepth
	case strings.Contains(stream, "@trade"):
		return StreamTrade
	case strings.Contains(stream, "@ticker"):
		return StreamTicker
	default:
		return StreamUnknown
	}
}

// SymbolFromStream extracts the symbol prefix of a stream tag
// ("btcusdt@depth20@100ms" -> "BTCUSDT").
func SymbolFromStream(stream string) string {
	if idx := strings.Index(stream, "@"); idx >= 0 {
		stream = stream[:idx]
	}
	return strings.ToUpper(stream)
}

// DepthSnapshot is an order-book depth update: an ordered top-N view of
// both sides of the book at a point in time.
type DepthSnapshot struct {
	Symbol    string
	UpdateID  int64
	Bids      []types.OrderBookLevel // descending by price
	Asks      []types.OrderBookLevel // ascending by price
	Timestamp time.Time
}

// BestBid returns the best (highest) bid level, or the zero level if empty.
func (d *DepthSnapshot) BestBid() types.OrderBookLevel {
	if len(d.Bids) == 0 {
		return types.OrderBookLevel{}
	}
	return d.Bids[0]
}

// BestAsk returns the best (lowest) ask level, or the zero level if empty.
func (d *DepthSnapshot) BestAsk() types.OrderBookLevel {
	if len(d.Asks) == 0 {
		return types.OrderBookLevel{}
	}
	return d.Asks[0]
}

// Mid returns the mid price between best bid and best ask.
func (d *DepthSnapshot) Mid() decimal.Decimal {
	bb, ba := d.BestBid().Price, d.BestAsk().Price
	return bb.Add(ba).Div(decimal.NewFromInt(2))
}

// Trade is a single executed trade.
type Trade struct {
	Symbol        string
	TradeID       int64
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	BuyerOrderID  int64
	SellerOrderID int64
	TradeTime     time.Time
	IsBuyerMaker  bool
	EventTime     time.Time
}

// TickerUpdate is a 24h rolling ticker update.
type TickerUpdate struct {
	Symbol             string
	LastPrice          decimal.Decimal
	Volume24h          decimal.Decimal
	HasVolume24h       bool
	PriceChangePercent decimal.Decimal
	HasPriceChangePct  bool
	EventTime          time.Time
}

type rawDepth struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

type rawTrade struct {
	TradeID       int64  `json:"t"`
	Price         string `json:"p"`
	Quantity      string `json:"q"`
	BuyerOrderID  int64  `json:"b"`
	SellerOrderID int64  `json:"a"`
	TradeTimeMs   int64  `json:"T"`
	IsBuyerMaker  bool   `json:"m"`
	EventTimeMs   int64  `json:"E"`
	Symbol        string `json:"s"`
}

type rawTicker struct {
	Symbol             string `json:"s"`
	LastPrice          string `json:"c"`
	Volume             string `json:"v"`
	PriceChangePercent string `json:"P"`
	EventTimeMs        int64  `json:"E"`
}

// ParseDepth decodes a depth payload for the given stream tag. It returns
// ErrParse on malformed JSON/fields and ErrMalformedDepth when either side
// has zero levels.
func ParseDepth(stream string, data []byte) (*DepthSnapshot, error) {
	var raw rawDepth
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	bids, err := parseLevels(raw.Bids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	asks, err := parseLevels(raw.Asks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(bids) == 0 || len(asks) == 0 {
		return nil, ErrMalformedDepth
	}

	return &DepthSnapshot{
		Symbol:    SymbolFromStream(stream),
		UpdateID:  raw.LastUpdateID,
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.Now().UTC(),
	}, nil
}

func parseLevels(raw [][]string) ([]types.OrderBookLevel, error) {
	levels := make([]types.OrderBookLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("level missing price/quantity")
		}
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, err
		}
		if price.IsNegative() || qty.IsNegative() {
			return nil, fmt.Errorf("negative price/quantity")
		}
		levels = append(levels, types.OrderBookLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

// ParseTrade decodes a trade payload for the given stream tag.
func ParseTrade(stream string, data []byte) (*Trade, error) {
	var raw rawTrade
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	price, err := decimal.NewFromString(raw.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	qty, err := decimal.NewFromString(raw.Quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	symbol := raw.Symbol
	if symbol == "" {
		symbol = SymbolFromStream(stream)
	}

	return &Trade{
		Symbol:        strings.ToUpper(symbol),
		TradeID:       raw.TradeID,
		Price:         price,
		Quantity:      qty,
		BuyerOrderID:  raw.BuyerOrderID,
		SellerOrderID: raw.SellerOrderID,
		TradeTime:     msToTime(raw.TradeTimeMs),
		IsBuyerMaker:  raw.IsBuyerMaker,
		EventTime:     msToTime(raw.EventTimeMs),
	}, nil
}

// ParseTicker decodes a ticker payload for the given stream tag.
func ParseTicker(stream string, data []byte) (*TickerUpdate, error) {
	var raw rawTicker
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	last, err := decimal.NewFromString(raw.LastPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	symbol := raw.Symbol
	if symbol == "" {
		symbol = SymbolFromStream(stream)
	}

	update := &TickerUpdate{
		Symbol:    strings.ToUpper(symbol),
		LastPrice: last,
		EventTime: msToTime(raw.EventTimeMs),
	}
	if raw.Volume != "" {
		if v, err := decimal.NewFromString(raw.Volume); err == nil {
			update.Volume24h = v
			update.HasVolume24h = true
		}
	}
	if raw.PriceChangePercent != "" {
		if v, err := decimal.NewFromString(raw.PriceChangePercent); err == nil {
			update.PriceChangePercent = v
			update.HasPriceChangePct = true
		}
	}
	return update, nil
}

func msToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
