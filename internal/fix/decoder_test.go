package fix

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mkoval/exposure-monitor/internal/model"
)

// buildFrame assembles a FIX frame from body fields, computing BodyLength
// and CheckSum the same way a real counterparty would.
func buildFrame(delim byte, bodyFields ...string) []byte {
	var body bytes.Buffer
	for _, f := range bodyFields {
		body.WriteString(f)
		body.WriteByte(delim)
	}

	var frame bytes.Buffer
	frame.WriteString("8=FIX.4.4")
	frame.WriteByte(delim)
	frame.WriteString(fmt.Sprintf("9=%d", body.Len()))
	frame.WriteByte(delim)
	frame.Write(body.Bytes())

	sum := Checksum(frame.Bytes())
	frame.WriteString("10=" + sum)
	frame.WriteByte(delim)

	return frame.Bytes()
}

func execReportFields() []string {
	return []string{
		"35=8",
		"55=ACME",
		"54=1",
		"38=500",
		"44=101.25",
		"150=F",
		"14=1500",
		"11=CL-001",
		"37=ORD-9",
		"60=20240115-12:30:45",
	}
}

func TestDecode_ExecutionReport(t *testing.T) {
	d := NewDecoder()
	frame := buildFrame(SOH, execReportFields()...)

	ev, err := d.Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if !ev.ChecksumValid {
		t.Error("ChecksumValid = false, want true")
	}
	if ev.Ticker != "ACME" {
		t.Errorf("Ticker = %q, want ACME", ev.Ticker)
	}
	if ev.Side != model.SideBuy {
		t.Errorf("Side = %q, want buy", ev.Side)
	}
	if ev.Quantity != 500 {
		t.Errorf("Quantity = %v, want 500", ev.Quantity)
	}
	if ev.Price != 101.25 {
		t.Errorf("Price = %v, want 101.25", ev.Price)
	}
	if ev.ExecType != "F" {
		t.Errorf("ExecType = %q, want F", ev.ExecType)
	}
	if ev.CumQty != 1500 {
		t.Errorf("CumQty = %v, want 1500", ev.CumQty)
	}
	if ev.OrderID != "ORD-9" {
		t.Errorf("OrderID = %q, want ORD-9", ev.OrderID)
	}
	if ev.ClOrdID != "CL-001" {
		t.Errorf("ClOrdID = %q, want CL-001", ev.ClOrdID)
	}
	if ev.TransactTime.IsZero() {
		t.Error("TransactTime is zero, want parsed timestamp")
	}
}

func TestDecode_SellSide(t *testing.T) {
	d := NewDecoder()
	fields := execReportFields()
	fields[2] = "54=2"

	ev, err := d.Decode(buildFrame(SOH, fields...))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.Side != model.SideSell {
		t.Errorf("Side = %q, want sell", ev.Side)
	}
}

func TestDecode_Heartbeat(t *testing.T) {
	d := NewDecoder()
	frame := buildFrame(SOH, "35=0")

	_, err := d.Decode(frame)
	if !errors.Is(err, ErrHeartbeat) {
		t.Errorf("Decode() error = %v, want ErrHeartbeat", err)
	}
}

func TestDecode_ChecksumRoundTrip(t *testing.T) {
	// Recomputing the checksum over the covered region must match the
	// embedded value for any generated frame.
	d := NewDecoder()
	frame := buildFrame(SOH, execReportFields()...)

	idx := bytes.LastIndex(frame, []byte{SOH, '1', '0', '='})
	covered := frame[:idx+1]
	embedded := string(frame[idx+4 : idx+7])

	if got := Checksum(covered); got != embedded {
		t.Errorf("Checksum() = %s, embedded = %s", got, embedded)
	}

	if _, err := d.Decode(frame); err != nil {
		t.Errorf("Decode() error = %v, want nil", err)
	}
}

func TestDecode_SingleByteCorruption(t *testing.T) {
	d := NewDecoder()
	frame := buildFrame(SOH, execReportFields()...)

	// Corrupt the symbol value.
	corrupted := bytes.Replace(frame, []byte("ACME"), []byte("ACMF"), 1)

	ev, err := d.Decode(corrupted)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Decode() error = %v, want ErrChecksumMismatch", err)
	}
	if ev.ChecksumValid {
		t.Error("ChecksumValid = true after corruption, want false")
	}
	if ev.Ticker != "ACMF" {
		t.Errorf("Ticker = %q, want partially decoded ACMF", ev.Ticker)
	}
}

func TestDecode_MissingRequiredTags(t *testing.T) {
	d := NewDecoder()

	all := execReportFields()
	for _, drop := range []string{"55=", "54=", "38=", "44=", "150=", "14=", "11=", "37="} {
		var fields []string
		for _, f := range all {
			if !strings.HasPrefix(f, drop) {
				fields = append(fields, f)
			}
		}
		_, err := d.Decode(buildFrame(SOH, fields...))
		if !errors.Is(err, ErrMissingTag) {
			t.Errorf("dropping %q: error = %v, want ErrMissingTag", drop, err)
		}
	}
}

func TestDecode_UnknownTagsIgnored(t *testing.T) {
	d := NewDecoder()
	fields := append(execReportFields(), "9999=whatever", "49=SENDER", "56=TARGET")

	ev, err := d.Decode(buildFrame(SOH, fields...))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.Ticker != "ACME" {
		t.Errorf("Ticker = %q, want ACME", ev.Ticker)
	}
}

func TestDecode_MalformedFrames(t *testing.T) {
	d := NewDecoder()

	cases := []struct {
		name  string
		frame []byte
	}{
		{"empty", nil},
		{"no begin string", []byte("35=8\x0110=000\x01")},
		{"no checksum", []byte("8=FIX.4.4\x019=5\x0135=8\x01")},
		{"bad side", buildFrame(SOH, "35=8", "55=ACME", "54=9", "38=1", "44=1", "150=F", "14=1", "11=a", "37=b")},
		{"bad quantity", buildFrame(SOH, "35=8", "55=ACME", "54=1", "38=abc", "44=1", "150=F", "14=1", "11=a", "37=b")},
		{"unsupported type", buildFrame(SOH, "35=D", "55=ACME")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Decode(tc.frame)
			if !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("Decode() error = %v, want ErrMalformedFrame", err)
			}
		})
	}
}

func TestDecode_PipeDelimiter(t *testing.T) {
	d := NewDecoderDelim('|')
	frame := buildFrame('|', execReportFields()...)

	ev, err := d.Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.Ticker != "ACME" {
		t.Errorf("Ticker = %q, want ACME", ev.Ticker)
	}
}

func TestChecksum_Padding(t *testing.T) {
	// A region summing below 100 must still produce three digits.
	if got := Checksum([]byte{1, 2, 3}); got != "006" {
		t.Errorf("Checksum() = %s, want 006", got)
	}
	if got := Checksum(nil); got != "000" {
		t.Errorf("Checksum(nil) = %s, want 000", got)
	}
}
