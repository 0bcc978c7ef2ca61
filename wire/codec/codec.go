// Package codec implements the fragmented framing codec of spec §4.3:
// turning an (event, named arguments) pair into one or more bounded
// wire frames and back.
//
// Ported from _examples/original_source/server/src/bus/bus.py's
// EncodedEvent.create/decode and Bus.__send's fragment-splitting loop,
// generalized per spec §4.3's contract. The loop shape (split into
// max_inner_len chunks, prepend a routing prefix per chunk) mirrors
// the teacher's stream/stream.go Frame splitting, adapted from a
// stream of byte frames to a bus of string frames.
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mc-fleet/corebus/wire/catalog"
	"github.com/mc-fleet/corebus/wire/value"
)

// ErrArgumentMismatch is returned by EncodePayload when the supplied kwargs
// don't exactly match the event's declared arguments (spec §7).
type ErrArgumentMismatch struct{ Msg string }

func (e *ErrArgumentMismatch) Error() string { return "codec: argument mismatch: " + e.Msg }

// ErrUnknownArgument is returned by DecodePayload when an encoded argument id
// has no matching declaration in the event (spec §7).
type ErrUnknownArgument struct{ ArgID uint8 }

func (e *ErrUnknownArgument) Error() string {
	return fmt.Sprintf("codec: unknown argument id %#x", e.ArgID)
}

// EncodePayload turns (event, kwargs) into a single-fragment payload:
// "<event_id 5-hex>FS<arg_block>" (spec §3/§4.3).
func EncodePayload(event *catalog.Event, kwargs map[string]interface{}) (string, error) {
	for _, arg := range event.Args {
		if _, ok := kwargs[arg.Name]; !ok {
			return "", &ErrArgumentMismatch{Msg: fmt.Sprintf("missing argument %q for event %s", arg.Name, event.Name)}
		}
	}
	if len(kwargs) != len(event.Args) {
		for name := range kwargs {
			if _, ok := event.Arg(name); !ok {
				return "", &ErrArgumentMismatch{Msg: fmt.Sprintf("unexpected argument %q for event %s", name, event.Name)}
			}
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%05x%s", event.ID&0xFFFFF, FileSeparator)

	parts := make([]string, 0, len(event.Args))
	for _, arg := range event.Args {
		encoded, err := value.Encode(kwargs[arg.Name], arg.Type)
		if err != nil {
			return "", fmt.Errorf("codec: encoding argument %q of event %s: %w", arg.Name, event.Name, err)
		}
		parts = append(parts, fmt.Sprintf("%02x%s%s", arg.ID, RecordSeparator, encoded))
	}
	sb.WriteString(strings.Join(parts, GroupSeparator))
	return sb.String(), nil
}

// DecodePayload reverses EncodePayload: parses a reassembled payload,
// looks the event up in cat, and returns its decoded named arguments.
func DecodePayload(payload string, cat *catalog.Catalog) (*catalog.Event, map[string]interface{}, error) {
	parts := strings.SplitN(payload, FileSeparator, 2)
	if len(parts) != 2 {
		return nil, nil, &ErrMalformedFrame{Msg: "payload missing event-id/arg-block separator"}
	}
	eventID, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return nil, nil, &ErrMalformedFrame{Msg: fmt.Sprintf("invalid event id %q: %s", parts[0], err)}
	}
	event, err := cat.LookupByID(uint32(eventID))
	if err != nil {
		return nil, nil, fmt.Errorf("codec: unknown event: %w", err)
	}

	args := map[string]interface{}{}
	if parts[1] != "" {
		for _, argStr := range strings.Split(parts[1], GroupSeparator) {
			if argStr == "" {
				continue
			}
			argParts := strings.SplitN(argStr, RecordSeparator, 2)
			if len(argParts) != 2 {
				return nil, nil, &ErrMalformedFrame{Msg: fmt.Sprintf("malformed argument %q", argStr)}
			}
			argID, err := strconv.ParseUint(argParts[0], 16, 8)
			if err != nil {
				return nil, nil, &ErrMalformedFrame{Msg: fmt.Sprintf("invalid argument id %q: %s", argParts[0], err)}
			}
			decl, ok := findArg(event, uint8(argID))
			if !ok {
				return nil, nil, &ErrUnknownArgument{ArgID: uint8(argID)}
			}
			val, err := value.Decode(argParts[1], decl.Type)
			if err != nil {
				return nil, nil, fmt.Errorf("codec: decoding argument %q of event %s: %w", decl.Name, event.Name, err)
			}
			args[decl.Name] = val
		}
	}
	return event, args, nil
}

func findArg(event *catalog.Event, id uint8) (catalog.EventArg, bool) {
	for _, a := range event.Args {
		if a.ID == id {
			return a, true
		}
	}
	return catalog.EventArg{}, false
}

// ErrEncodedSizeOverflow is returned when a payload, even after
// fragmentation, cannot be made to fit within max_frame_length (spec
// §7: "Encoded size overflow after fragmentation").
type ErrEncodedSizeOverflow struct{ PayloadLen, MaxInnerLen int }

func (e *ErrEncodedSizeOverflow) Error() string {
	return fmt.Sprintf("codec: payload of %d bytes cannot be fragmented into frames of at most %d bytes", e.PayloadLen, e.MaxInnerLen)
}

// Fragment splits payload into ordered chunks of at most maxInnerLen
// bytes each (spec §4.3). Empty-tail fragments are never produced: a
// payload whose length is an exact multiple of maxInnerLen yields
// exactly len(payload)/maxInnerLen fragments, not one more empty one.
func Fragment(payload string, maxInnerLen int) ([]string, error) {
	if maxInnerLen <= 0 {
		return nil, &ErrEncodedSizeOverflow{PayloadLen: len(payload), MaxInnerLen: maxInnerLen}
	}
	if payload == "" {
		return []string{""}, nil
	}
	var fragments []string
	for i := 0; i < len(payload); i += maxInnerLen {
		end := i + maxInnerLen
		if end > len(payload) {
			end = len(payload)
		}
		fragments = append(fragments, payload[i:end])
	}
	if len(fragments) > 255 {
		return nil, &ErrEncodedSizeOverflow{PayloadLen: len(payload), MaxInnerLen: maxInnerLen}
	}
	return fragments, nil
}

// ErrFragment reports a reassembly-buffer violation: an out-of-order,
// duplicate, or orphaned fragment (spec §4.3/§7: "Fragment error").
type ErrFragment struct{ Msg string }

func (e *ErrFragment) Error() string { return "codec: fragment error: " + e.Msg }

type reassemblyKey struct {
	sourceID  uint8
	messageID uint8
}

type reassemblyEntry struct {
	remaining    uint8
	nextExpected uint8
	data         strings.Builder
}

// Reassembler merges multi-fragment messages keyed by
// (source_id, message_id), per spec §4.3. It is not safe for
// concurrent use: spec §5 makes reassembly buffers private to a
// single listener goroutine.
type Reassembler struct {
	pending map[reassemblyKey]*reassemblyEntry
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{pending: map[reassemblyKey]*reassemblyEntry{}}
}

// Add feeds one received frame's prefix and payload into the
// reassembler. It returns (payload, true, nil) once a logical message
// is complete (immediately, for single-fragment messages). An
// out-of-order or orphaned fragment drops the in-flight message (if
// any) and returns a non-nil *ErrFragment; the caller should log and
// continue, never treating this as fatal (spec §5/§7).
func (r *Reassembler) Add(prefix Prefix, payload string) (string, bool, error) {
	if prefix.FragmentCount <= 1 {
		return payload, true, nil
	}

	key := reassemblyKey{sourceID: prefix.SourceID, messageID: prefix.MessageID}

	if prefix.FragmentIndex == 0 {
		entry := &reassemblyEntry{remaining: prefix.FragmentCount - 1, nextExpected: 1}
		entry.data.WriteString(payload)
		r.pending[key] = entry
		return "", false, nil
	}

	entry, ok := r.pending[key]
	if !ok {
		return "", false, &ErrFragment{Msg: fmt.Sprintf(
			"received fragment_index=%d for message_id=%d from source=%d with no prior fragment 0",
			prefix.FragmentIndex, prefix.MessageID, prefix.SourceID)}
	}
	if prefix.FragmentIndex != entry.nextExpected {
		delete(r.pending, key)
		return "", false, &ErrFragment{Msg: fmt.Sprintf(
			"out-of-order fragment_index=%d (expected %d) for message_id=%d from source=%d, dropping in-flight message",
			prefix.FragmentIndex, entry.nextExpected, prefix.MessageID, prefix.SourceID)}
	}

	entry.data.WriteString(payload)
	entry.remaining--
	entry.nextExpected++
	if entry.remaining == 0 {
		delete(r.pending, key)
		return entry.data.String(), true, nil
	}
	return "", false, nil
}

// Pending returns the number of in-flight (incomplete) messages
// currently buffered, for introspection/tests.
func (r *Reassembler) Pending() int { return len(r.pending) }
