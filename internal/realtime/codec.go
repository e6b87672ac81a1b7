package realtime

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so equal events encode to equal bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("realtime: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("realtime: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode serializes an event for the cross-process channel.
func Encode(event Event) ([]byte, error) {
	data, err := encMode.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("realtime: encode %s event: %w", event.Type, err)
	}
	return data, nil
}

// Decode parses an event produced by Encode.
func Decode(data []byte) (Event, error) {
	var event Event
	if err := decMode.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("realtime: decode event: %w", err)
	}
	if event.Type == "" || event.MeetingID == "" {
		return Event{}, fmt.Errorf("realtime: decode event: missing type or meeting id")
	}
	return event, nil
}
