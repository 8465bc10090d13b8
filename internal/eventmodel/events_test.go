// Package eventmodel_test provides tests for event intake parsing.
package eventmodel_test

import (
	"testing"

	"github.com/atlas-desktop/signal-engine/internal/eventmodel"
	"github.com/shopspring/decimal"
)

func TestClassifyStream(t *testing.T) {
	cases := map[string]eventmodel.StreamKind{
		"btcusdt@depth20@100ms": eventmodel.StreamDepth,
		"ethusdt@trade":         eventmodel.StreamTrade,
		"btcusdt@ticker":        eventmodel.StreamTicker,
		"btcusdt@kline_1m":      eventmodel.StreamUnknown,
	}

	for stream, want := range cases {
		if got := eventmodel.ClassifyStream(stream); got != want {
			t.Errorf("ClassifyStream(%q) = %q, want %q", stream, got, want)
		}
	}
}

func TestUnwrapEnvelope(t *testing.T) {
	body := []byte(`{"stream":"ethusdt@trade","data":{"t":1}}`)
	stream, payload := eventmodel.Unwrap("binance.marketdata.ethusdt", body)
	if stream != "ethusdt@trade" {
		t.Errorf("stream = %q, want ethusdt@trade", stream)
	}
	if string(payload) != `{"t":1}` {
		t.Errorf("payload = %s, want inner data", payload)
	}

	bare := []byte(`{"t":1}`)
	stream, payload = eventmodel.Unwrap("ethusdt@trade", bare)
	if stream != "ethusdt@trade" {
		t.Errorf("bare stream = %q, want subject fallback", stream)
	}
	if string(payload) != `{"t":1}` {
		t.Errorf("bare payload altered: %s", payload)
	}
}

func TestParseDepthRejectsEmptySide(t *testing.T) {
	payload := []byte(`{"lastUpdateId":1,"bids":[["50000","1"]],"asks":[]}`)
	if _, err := eventmodel.ParseDepth("btcusdt@depth20@100ms", payload); err != eventmodel.ErrMalformedDepth {
		t.Fatalf("expected ErrMalformedDepth, got %v", err)
	}
}

func TestParseDepthHappyPath(t *testing.T) {
	payload := []byte(`{
		"lastUpdateId": 100,
		"bids": [["50000","3"],["49999","2"]],
		"asks": [["50001","0.5"],["50002","0.4"]]
	}`)

	depth, err := eventmodel.ParseDepth("btcusdt@depth20@100ms", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if depth.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q, want BTCUSDT", depth.Symbol)
	}
	if len(depth.Bids) != 2 || len(depth.Asks) != 2 {
		t.Fatalf("expected 2 bids/asks, got %d/%d", len(depth.Bids), len(depth.Asks))
	}
	if !depth.BestBid().Price.Equal(depth.Bids[0].Price) {
		t.Errorf("BestBid should be first bid level")
	}
}

func TestParseTradeHappyPath(t *testing.T) {
	payload := []byte(`{"t":1,"p":"50000.5","q":"0.01","b":10,"a":11,"T":1690000000000,"m":true,"E":1690000000100,"s":"ETHUSDT"}`)

	trade, err := eventmodel.ParseTrade("ethusdt@trade", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade.Symbol != "ETHUSDT" {
		t.Errorf("symbol = %q, want ETHUSDT", trade.Symbol)
	}
	if !trade.IsBuyerMaker {
		t.Errorf("expected IsBuyerMaker true")
	}
}

func TestParseTickerOptionalFields(t *testing.T) {
	payload := []byte(`{"s":"BTCUSDT","c":"50000","E":1690000000000}`)

	ticker, err := eventmodel.ParseTicker("btcusdt@ticker", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticker.HasVolume24h {
		t.Errorf("expected HasVolume24h false when volume omitted")
	}
	want, _ := decimal.NewFromString("50000")
	if !ticker.LastPrice.Equal(want) {
		t.Errorf("unexpected last price: %v", ticker.LastPrice)
	}
}
