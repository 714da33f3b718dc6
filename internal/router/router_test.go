package router

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mkoval/exposure-monitor/internal/feed"
	"github.com/mkoval/exposure-monitor/internal/fix"
	"github.com/mkoval/exposure-monitor/internal/model"
)

const soh = "\x01"

// frame assembles a FIX frame with computed BodyLength and Checksum
// from the given body fields.
func frame(fields ...string) []byte {
	body := strings.Join(fields, soh) + soh
	head := "8=FIX.4.4" + soh + "9=" + strconv.Itoa(len(body)) + soh
	full := head + body
	return []byte(full + "10=" + fix.Checksum([]byte(full)) + soh)
}

func execReport() []byte {
	return frame(
		"35=8", "55=ACME", "54=1", "38=500", "44=23.75",
		"150=F", "14=500", "11=ord-1", "37=X-100",
		"60=20260830-14:30:00",
	)
}

func startRouter(t *testing.T) (*Router, chan feed.RawMessage) {
	t.Helper()
	input := make(chan feed.RawMessage, 16)
	r := New(Config{TradeBufferSize: 8, QuoteBufferSize: 8}, input, nil)
	r.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.Stop(ctx)
	})
	return r, input
}

func waitStats(t *testing.T, r *Router, cond func(Stats) bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond(r.Stats()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s (stats: %+v)", msg, r.Stats())
}

func TestRouter_RoutesExecutionReport(t *testing.T) {
	r, input := startRouter(t)

	receivedAt := time.Now()
	input <- feed.RawMessage{Data: execReport(), ReceivedAt: receivedAt, Source: "ws"}

	event, ok := r.Buffers().Trades.Pop()
	if !ok {
		t.Fatal("trade buffer closed before delivery")
	}
	if event.Ticker != "ACME" || event.Side != model.SideBuy || event.Quantity != 500 {
		t.Errorf("event = %+v", event)
	}
	if event.Price != 23.75 {
		t.Errorf("Price = %v, want 23.75", event.Price)
	}
	if !event.ChecksumValid {
		t.Error("ChecksumValid = false for intact frame")
	}
	if !event.ReceivedAt.Equal(receivedAt) {
		t.Error("ReceivedAt not carried from raw message")
	}
}

func TestRouter_DiscardsCorruptFrame(t *testing.T) {
	r, input := startRouter(t)

	corrupt := execReport()
	// Mutate the symbol in place; the trailing checksum is now stale.
	corrupt[bytes.Index(corrupt, []byte("ACME"))+3] = 'F'

	input <- feed.RawMessage{Data: corrupt, ReceivedAt: time.Now()}

	waitStats(t, r, func(s Stats) bool { return s.IntegrityDiscards == 1 },
		"integrity discard never counted")

	if got := r.Buffers().Trades.Len(); got != 0 {
		t.Errorf("trade buffer has %d events, corrupt frame must not be forwarded", got)
	}
}

func TestRouter_DropsHeartbeats(t *testing.T) {
	r, input := startRouter(t)

	input <- feed.RawMessage{Data: frame("35=0"), ReceivedAt: time.Now()}

	waitStats(t, r, func(s Stats) bool { return s.Heartbeats == 1 },
		"heartbeat never counted")

	if got := r.Stats().Routed; got != 0 {
		t.Errorf("Routed = %d, want 0", got)
	}
}

func TestRouter_RoutesQuotes(t *testing.T) {
	r, input := startRouter(t)

	input <- feed.RawMessage{
		Data:       []byte(`{"type":"quote","ticker":"ACME","price":24.1,"position":50000,"jurisdiction":"US"}`),
		ReceivedAt: time.Now(),
	}

	quote, ok := r.Buffers().Quotes.Pop()
	if !ok {
		t.Fatal("quote buffer closed before delivery")
	}
	if quote.Ticker != "ACME" || quote.Price != 24.1 {
		t.Errorf("quote = %+v", quote)
	}
	if !quote.HasPosition || quote.Position != 50000 {
		t.Errorf("position = %v (has=%v)", quote.Position, quote.HasPosition)
	}
}

func TestRouter_CountsParseErrorsAndUnknown(t *testing.T) {
	r, input := startRouter(t)

	input <- feed.RawMessage{Data: []byte(`{not json`), ReceivedAt: time.Now()}
	input <- feed.RawMessage{Data: []byte(`{"type":"weather_report"}`), ReceivedAt: time.Now()}
	input <- feed.RawMessage{Data: []byte(`{"type":"pong"}`), ReceivedAt: time.Now()}

	waitStats(t, r, func(s Stats) bool {
		return s.ParseErrors == 1 && s.Unknown == 1 && s.Received == 3
	}, "parse error / unknown counters wrong")

	if got := r.Stats().Routed; got != 0 {
		t.Errorf("Routed = %d, want 0", got)
	}
}
