package replay

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same log
// always encodes to the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("replay: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("replay: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v with the deterministic CBOR mode.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encode serializes a log.
func Encode(l Log) ([]byte, error) {
	data, err := Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("encode replay log: %w", err)
	}
	return data, nil
}

// Decode parses and validates a log.
func Decode(data []byte) (Log, error) {
	var l Log
	if err := Unmarshal(data, &l); err != nil {
		return Log{}, fmt.Errorf("decode replay log: %v: %w", err, ErrCorrupt)
	}
	if err := l.Validate(); err != nil {
		return Log{}, err
	}
	return l, nil
}
