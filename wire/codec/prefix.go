package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// Frame-level separators (spec §6, bit-exact across peers).
const (
	FileSeparator  = "\x1c" // FS, between prefix and payload, and event_id/arg_block
	GroupSeparator = "\x1d" // GS, between prefix fields
	RecordSeparator = "\x1e" // RS, between an arg id and its encoded value
	UnitSeparator  = "\x1f" // US, reserved
)

// PrefixLength is the wire length of an encoded Prefix: 5 hex-byte
// fields (2 chars each) + 4 GS separators + 1 trailing FS (spec §6).
const PrefixLength = 5*2 + 4 + 1

// Prefix is the routing prefix carried by every frame (spec §3).
type Prefix struct {
	SourceID       uint8
	TargetID       uint8
	FragmentIndex  uint8
	FragmentCount  uint8
	MessageID      uint8
}

// String encodes the prefix as five GS-separated 2-char hex fields.
func (p Prefix) String() string {
	return strings.Join([]string{
		fmt.Sprintf("%02X", p.SourceID),
		fmt.Sprintf("%02X", p.TargetID),
		fmt.Sprintf("%02X", p.FragmentIndex),
		fmt.Sprintf("%02X", p.FragmentCount),
		fmt.Sprintf("%02X", p.MessageID),
	}, GroupSeparator)
}

// ErrMalformedFrame is returned when a frame's structure (prefix or
// payload) cannot be parsed (spec §7).
type ErrMalformedFrame struct{ Msg string }

func (e *ErrMalformedFrame) Error() string { return "codec: malformed frame: " + e.Msg }

// ParsePrefix parses the five GS-separated hex fields of an encoded
// Prefix.
func ParsePrefix(encoded string) (Prefix, error) {
	parts := strings.Split(encoded, GroupSeparator)
	if len(parts) != 5 {
		return Prefix{}, &ErrMalformedFrame{Msg: "prefix does not have 5 fields"}
	}
	vals := make([]uint8, 5)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return Prefix{}, &ErrMalformedFrame{Msg: fmt.Sprintf("invalid hex field %q: %s", p, err)}
		}
		vals[i] = uint8(n)
	}
	return Prefix{
		SourceID:      vals[0],
		TargetID:      vals[1],
		FragmentIndex: vals[2],
		FragmentCount: vals[3],
		MessageID:     vals[4],
	}, nil
}

// SplitFrame separates an encoded frame into its Prefix and payload.
func SplitFrame(frame string) (Prefix, string, error) {
	idx := strings.Index(frame, FileSeparator)
	if idx < 0 {
		return Prefix{}, "", &ErrMalformedFrame{Msg: "no prefix/payload separator found"}
	}
	prefix, err := ParsePrefix(frame[:idx])
	if err != nil {
		return Prefix{}, "", err
	}
	return prefix, frame[idx+len(FileSeparator):], nil
}

// JoinFrame prepends prefix to payload, FS-separated.
func JoinFrame(prefix Prefix, payload string) string {
	return prefix.String() + FileSeparator + payload
}
