// Package value implements the bidirectional conversion between typed
// event arguments and their wire-string encoding (spec §4.1).
//
// Ported from _examples/original_source/server/src/bus/events.py's
// module-level encode/decode/guess_type functions and
// .../utils/misc.py:split_with_nested, .../utils/regex.py's
// RE_*_TYPE / RE_ENCODED_* patterns.
package value

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Composite-value separators (spec §6).
const (
	NegativeAcknowledge = "\x15" // NAK, joins list/tuple/dict entries
	SynchronousIdle     = "\x16" // SYN, separates a dict key from its value
	EndOfMedium         = "\x19" // EM, separates an "Any" type prefix from its value
)

var (
	reListType  = regexp.MustCompile(`(?i)^list\[(.*)\]$`)
	reTupleType = regexp.MustCompile(`(?i)^tuple\[(.*)\]$`)
	reDictType  = regexp.MustCompile(`(?i)^dict\[(.*)\]$`)

	reEncodedList  = regexp.MustCompile(`^\[(.*)\]$`)
	reEncodedTuple = regexp.MustCompile(`^\((.*)\)$`)
	reEncodedDict  = regexp.MustCompile(`^\{(.*)\}$`)
)

// ConversionError reports a failed encode/decode of a value against a
// declared wire type.
type ConversionError struct {
	Value interface{}
	Type  string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("value: cannot convert %#v to/from type %q: %s", e.Value, e.Type, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

func convErr(v interface{}, t string, err error) error {
	return &ConversionError{Value: v, Type: t, Err: err}
}

// SplitWithNested splits s on sep, ignoring occurrences of sep nested
// inside [], {}, () brackets. Mirrors misc.py:split_with_nested.
func SplitWithNested(s string, sep byte) []string {
	var parts []string
	var current strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '[', '{', '(':
			depth++
		case ']', '}', ')':
			depth--
		}
		if c == sep && depth == 0 {
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
			continue
		}
		current.WriteByte(c)
	}
	if tail := strings.TrimSpace(current.String()); tail != "" {
		parts = append(parts, tail)
	}
	return parts
}

// GuessType returns a wire-type designator for v, the way
// events.py:guess_type infers the prefix stored alongside an "Any"
// value. Union member types are alphabetized and joined with "|".
// Encode and Decode accept neither union designators (such as
// "list[int|str]") nor the bare "list", "dict" and "tuple" returned for
// empty containers, so an "Any" value of those shapes fails to encode.
func GuessType(v interface{}) string {
	switch t := v.(type) {
	case []interface{}:
		if len(t) == 0 {
			return "list"
		}
		set := map[string]struct{}{}
		for _, item := range t {
			set[GuessType(item)] = struct{}{}
		}
		return fmt.Sprintf("list[%s]", unionOf(set))
	case map[interface{}]interface{}:
		if len(t) == 0 {
			return "dict"
		}
		keys := map[string]struct{}{}
		vals := map[string]struct{}{}
		for k, val := range t {
			keys[GuessType(k)] = struct{}{}
			vals[GuessType(val)] = struct{}{}
		}
		return fmt.Sprintf("dict[%s, %s]", unionOf(keys), unionOf(vals))
	case Tuple:
		if len(t) == 0 {
			return "tuple"
		}
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = GuessType(item)
		}
		return fmt.Sprintf("tuple[%s]", strings.Join(parts, ", "))
	case int, int64:
		return "int"
	case float64, float32:
		return "float"
	case string:
		return "str"
	case bool:
		return "bool"
	case time.Time:
		return "datetime"
	case Version:
		return "Version"
	}
	return "str"
}

func unionOf(set map[string]struct{}) string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

// Tuple is the runtime representation of a wire "tuple[...]" value:
// a fixed-length, heterogeneously-typed sequence.
type Tuple []interface{}

// Encode converts v into its wire-string form for the declared
// dataType (spec §4.1's encoding table).
func Encode(v interface{}, dataType string) (string, error) {
	switch dataType {
	case "int":
		switch n := v.(type) {
		case int:
			return strconv.Itoa(n), nil
		case int64:
			return strconv.FormatInt(n, 10), nil
		default:
			return "", convErr(v, dataType, fmt.Errorf("expected an int"))
		}
	case "float":
		switch n := v.(type) {
		case float64:
			return strconv.FormatFloat(n, 'g', -1, 64), nil
		case float32:
			return strconv.FormatFloat(float64(n), 'g', -1, 32), nil
		default:
			return "", convErr(v, dataType, fmt.Errorf("expected a float"))
		}
	case "str", "string":
		s, ok := v.(string)
		if !ok {
			return "", convErr(v, dataType, fmt.Errorf("expected a string"))
		}
		return s, nil
	case "bool":
		b, ok := v.(bool)
		if !ok {
			return "", convErr(v, dataType, fmt.Errorf("expected a bool"))
		}
		if b {
			return "t", nil
		}
		return "f", nil
	case "datetime":
		t, ok := v.(time.Time)
		if !ok {
			return "", convErr(v, dataType, fmt.Errorf("expected a time.Time"))
		}
		return strconv.FormatInt(t.Unix(), 10), nil
	case "Version":
		ver, ok := v.(Version)
		if !ok {
			return "", convErr(v, dataType, fmt.Errorf("expected a Version"))
		}
		return ver.String(), nil
	case "Any":
		guessed := GuessType(v)
		encoded, err := Encode(v, guessed)
		if err != nil {
			return "", err
		}
		return guessed + EndOfMedium + encoded, nil
	}

	if m := reListType.FindStringSubmatch(dataType); m != nil {
		items, ok := v.([]interface{})
		if !ok {
			return "", convErr(v, dataType, fmt.Errorf("expected a list"))
		}
		itemType := strings.TrimSpace(m[1])
		encoded := make([]string, len(items))
		for i, item := range items {
			e, err := Encode(item, itemType)
			if err != nil {
				return "", err
			}
			encoded[i] = e
		}
		return "[" + strings.Join(encoded, NegativeAcknowledge) + "]", nil
	}
	if m := reTupleType.FindStringSubmatch(dataType); m != nil {
		items, ok := v.(Tuple)
		if !ok {
			return "", convErr(v, dataType, fmt.Errorf("expected a tuple"))
		}
		innerTypes := SplitWithNested(m[1], ',')
		if len(innerTypes) != len(items) {
			return "", convErr(v, dataType, fmt.Errorf("expected a tuple of %d elements, got %d", len(innerTypes), len(items)))
		}
		encoded := make([]string, len(items))
		for i, item := range items {
			e, err := Encode(item, innerTypes[i])
			if err != nil {
				return "", err
			}
			encoded[i] = e
		}
		return "(" + strings.Join(encoded, NegativeAcknowledge) + ")", nil
	}
	if m := reDictType.FindStringSubmatch(dataType); m != nil {
		dict, ok := v.(map[interface{}]interface{})
		if !ok {
			return "", convErr(v, dataType, fmt.Errorf("expected a dict"))
		}
		innerTypes := SplitWithNested(m[1], ',')
		if len(innerTypes) != 2 {
			return "", convErr(v, dataType, fmt.Errorf("expected a dict with two types"))
		}
		keyType, valType := innerTypes[0], innerTypes[1]
		entries := make([]string, 0, len(dict))
		for k, val := range dict {
			ek, err := Encode(k, keyType)
			if err != nil {
				return "", err
			}
			ev, err := Encode(val, valType)
			if err != nil {
				return "", err
			}
			entries = append(entries, ek+SynchronousIdle+ev)
		}
		return "{" + strings.Join(entries, NegativeAcknowledge) + "}", nil
	}

	return "", convErr(v, dataType, fmt.Errorf("unknown data type"))
}

// Decode parses a wire-string value back into its typed Go
// representation for the declared dataType.
func Decode(data string, dataType string) (interface{}, error) {
	if dataType == "Any" {
		idx := strings.Index(data, EndOfMedium)
		if idx < 0 {
			return nil, convErr(data, dataType, fmt.Errorf("expected a type prefix"))
		}
		typePrefix, actual := data[:idx], data[idx+len(EndOfMedium):]
		return Decode(actual, typePrefix)
	}

	switch dataType {
	case "int":
		n, err := strconv.Atoi(data)
		if err != nil {
			return nil, convErr(data, dataType, err)
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(data, 64)
		if err != nil {
			return nil, convErr(data, dataType, err)
		}
		return f, nil
	case "str", "string":
		return data, nil
	case "bool":
		switch data {
		case "t":
			return true, nil
		case "f":
			return false, nil
		default:
			return nil, convErr(data, dataType, fmt.Errorf("expected 't' or 'f'"))
		}
	case "datetime":
		sec, err := strconv.ParseInt(data, 10, 64)
		if err != nil {
			return nil, convErr(data, dataType, err)
		}
		return time.Unix(sec, 0), nil
	case "Version":
		v, err := ParseVersion(data)
		if err != nil {
			return nil, convErr(data, dataType, err)
		}
		return v, nil
	}

	if m := reListType.FindStringSubmatch(dataType); m != nil {
		em := reEncodedList.FindStringSubmatch(data)
		if em == nil {
			return nil, convErr(data, dataType, fmt.Errorf("expected an encoded list"))
		}
		itemType := strings.TrimSpace(m[1])
		var itemStrs []string
		if em[1] != "" {
			itemStrs = SplitWithNested(em[1], NegativeAcknowledge[0])
		}
		items := make([]interface{}, len(itemStrs))
		for i, s := range itemStrs {
			val, err := Decode(s, itemType)
			if err != nil {
				return nil, err
			}
			items[i] = val
		}
		return items, nil
	}
	if m := reTupleType.FindStringSubmatch(dataType); m != nil {
		em := reEncodedTuple.FindStringSubmatch(data)
		if em == nil {
			return nil, convErr(data, dataType, fmt.Errorf("expected an encoded tuple"))
		}
		innerTypes := SplitWithNested(m[1], ',')
		var itemStrs []string
		if em[1] != "" {
			itemStrs = SplitWithNested(em[1], NegativeAcknowledge[0])
		}
		if len(innerTypes) != len(itemStrs) {
			return nil, convErr(data, dataType, fmt.Errorf("expected a tuple of %d elements, got %d", len(innerTypes), len(itemStrs)))
		}
		items := make(Tuple, len(itemStrs))
		for i, s := range itemStrs {
			val, err := Decode(s, innerTypes[i])
			if err != nil {
				return nil, err
			}
			items[i] = val
		}
		return items, nil
	}
	if m := reDictType.FindStringSubmatch(dataType); m != nil {
		innerTypes := SplitWithNested(m[1], ',')
		if len(innerTypes) != 2 {
			return nil, convErr(data, dataType, fmt.Errorf("expected a dict with two types"))
		}
		keyType, valType := innerTypes[0], innerTypes[1]
		em := reEncodedDict.FindStringSubmatch(data)
		if em == nil {
			return nil, convErr(data, dataType, fmt.Errorf("expected an encoded dict"))
		}
		var itemStrs []string
		if em[1] != "" {
			itemStrs = SplitWithNested(em[1], NegativeAcknowledge[0])
		}
		result := make(map[interface{}]interface{}, len(itemStrs))
		for _, item := range itemStrs {
			idx := strings.Index(item, SynchronousIdle)
			if idx < 0 {
				return nil, convErr(data, dataType, fmt.Errorf("malformed dict item: %s", item))
			}
			keyStr, valStr := item[:idx], item[idx+len(SynchronousIdle):]
			key, err := Decode(keyStr, keyType)
			if err != nil {
				return nil, err
			}
			val, err := Decode(valStr, valType)
			if err != nil {
				return nil, err
			}
			result[key] = val
		}
		return result, nil
	}

	return nil, convErr(data, dataType, fmt.Errorf("unknown data type"))
}
