package fix

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mkoval/exposure-monitor/internal/model"
)

// SOH is the standard FIX field delimiter.
const SOH byte = 0x01

// Tag numbers used by the decoder. Everything else is ignored.
const (
	tagBeginString  = "8"
	tagBodyLength   = "9"
	tagCheckSum     = "10"
	tagClOrdID      = "11"
	tagCumQty       = "14"
	tagMsgType      = "35"
	tagOrderID      = "37"
	tagOrderQty     = "38"
	tagPrice        = "44"
	tagSide         = "54"
	tagSymbol       = "55"
	tagTransactTime = "60"
	tagExecType     = "150"
)

// Message types.
const (
	msgTypeHeartbeat  = "0"
	msgTypeExecReport = "8"
)

var (
	// ErrHeartbeat marks a valid heartbeat frame. No trade event is produced.
	ErrHeartbeat = errors.New("fix: heartbeat frame")

	// ErrChecksumMismatch marks a frame whose trailing checksum does not
	// match the recomputed value. The returned event carries
	// ChecksumValid=false and must never be applied as a trade.
	ErrChecksumMismatch = errors.New("fix: checksum mismatch")

	// ErrMissingTag marks a frame lacking a required tag.
	ErrMissingTag = errors.New("fix: missing required tag")

	// ErrMalformedFrame marks a frame that cannot be parsed at all.
	ErrMalformedFrame = errors.New("fix: malformed frame")
)

// Decoder parses delimiter-framed FIX messages into trade events.
// Pure: Decode has no side effects and is safe for concurrent use.
type Decoder struct {
	delim byte
}

// NewDecoder returns a decoder using the standard SOH delimiter.
func NewDecoder() *Decoder {
	return &Decoder{delim: SOH}
}

// NewDecoderDelim returns a decoder using a custom delimiter.
// Useful for tests and log replays where frames use '|'.
func NewDecoderDelim(delim byte) *Decoder {
	return &Decoder{delim: delim}
}

// Decode parses one frame. On success it returns a trade event with
// ChecksumValid=true. Heartbeats return ErrHeartbeat and no event.
// Checksum failures return the partially decoded event with
// ChecksumValid=false alongside ErrChecksumMismatch.
func (d *Decoder) Decode(frame []byte) (model.TradeEvent, error) {
	var ev model.TradeEvent

	if len(frame) == 0 {
		return ev, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}
	if !bytes.HasPrefix(frame, []byte(tagBeginString+"=")) {
		return ev, fmt.Errorf("%w: frame does not start with BeginString", ErrMalformedFrame)
	}

	// Locate the trailing checksum field. Everything before it is covered
	// by the checksum computation.
	marker := []byte{d.delim, '1', '0', '='}
	idx := bytes.LastIndex(frame, marker)
	if idx < 0 {
		return ev, fmt.Errorf("%w: no checksum field", ErrMalformedFrame)
	}
	covered := frame[:idx+1] // includes the delimiter before "10="

	fields, err := d.splitFields(frame)
	if err != nil {
		return ev, err
	}

	declared, ok := fields[tagCheckSum]
	if !ok || len(declared) != 3 {
		return ev, fmt.Errorf("%w: bad checksum field", ErrMalformedFrame)
	}

	msgType, ok := fields[tagMsgType]
	if !ok {
		return ev, fmt.Errorf("%w: 35", ErrMissingTag)
	}

	computed := Checksum(covered)
	checksumOK := declared == computed

	if msgType == msgTypeHeartbeat {
		if !checksumOK {
			return ev, ErrChecksumMismatch
		}
		return ev, ErrHeartbeat
	}
	if msgType != msgTypeExecReport {
		return ev, fmt.Errorf("%w: unsupported message type %q", ErrMalformedFrame, msgType)
	}

	ev, err = d.buildEvent(fields)
	if err != nil {
		return model.TradeEvent{}, err
	}

	ev.ChecksumValid = checksumOK
	if !checksumOK {
		return ev, ErrChecksumMismatch
	}
	return ev, nil
}

// splitFields breaks the frame into tag=value pairs. Duplicate tags keep
// the last occurrence; unknown tags are retained and simply never read.
func (d *Decoder) splitFields(frame []byte) (map[string]string, error) {
	fields := make(map[string]string, 16)

	for _, raw := range bytes.Split(frame, []byte{d.delim}) {
		if len(raw) == 0 {
			continue // trailing delimiter
		}
		eq := bytes.IndexByte(raw, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("%w: field %q has no tag=value form", ErrMalformedFrame, raw)
		}
		fields[string(raw[:eq])] = string(raw[eq+1:])
	}

	return fields, nil
}

// buildEvent extracts the required execution-report tags.
func (d *Decoder) buildEvent(fields map[string]string) (model.TradeEvent, error) {
	var ev model.TradeEvent

	required := []string{tagSymbol, tagSide, tagOrderQty, tagPrice, tagExecType, tagCumQty, tagClOrdID, tagOrderID}
	for _, tag := range required {
		if _, ok := fields[tag]; !ok {
			return ev, fmt.Errorf("%w: %s", ErrMissingTag, tag)
		}
	}

	side, err := parseSide(fields[tagSide])
	if err != nil {
		return ev, err
	}

	qty, err := parseFloat(tagOrderQty, fields[tagOrderQty])
	if err != nil {
		return ev, err
	}
	price, err := parseFloat(tagPrice, fields[tagPrice])
	if err != nil {
		return ev, err
	}
	cumQty, err := parseFloat(tagCumQty, fields[tagCumQty])
	if err != nil {
		return ev, err
	}

	ev = model.TradeEvent{
		Ticker:   fields[tagSymbol],
		Side:     side,
		Quantity: qty,
		Price:    price,
		ExecType: fields[tagExecType],
		CumQty:   cumQty,
		OrderID:  fields[tagOrderID],
		ClOrdID:  fields[tagClOrdID],
	}

	// TransactTime is optional on the wire.
	if ts, ok := fields[tagTransactTime]; ok {
		ev.TransactTime = parseTransactTime(ts)
	}

	return ev, nil
}

// Checksum computes the FIX checksum over data: the byte sum modulo 256,
// zero-padded to three decimal digits.
func Checksum(data []byte) string {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return fmt.Sprintf("%03d", sum%256)
}

func parseSide(v string) (model.Side, error) {
	switch v {
	case "1":
		return model.SideBuy, nil
	case "2":
		return model.SideSell, nil
	}
	return "", fmt.Errorf("%w: side %q", ErrMalformedFrame, v)
}

func parseFloat(tag, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: tag %s value %q", ErrMalformedFrame, tag, v)
	}
	return f, nil
}

// parseTransactTime parses FIX UTCTimestamp. Returns zero time on failure;
// receive time is authoritative when the upstream clock is unusable.
func parseTransactTime(v string) time.Time {
	for _, layout := range []string{
		"20060102-15:04:05.000",
		"20060102-15:04:05",
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
