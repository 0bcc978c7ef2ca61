package bus

import "strings"

// RegisteredArg is the declared name/type of one callback parameter, a
// caller-supplied stand-in for the reflection-based annotation lookup
// the original interpreter performs (spec §9: "Reflection-based
// callback type checking ... must be emulated with an explicit
// registration descriptor").
type RegisteredArg struct {
	Name string
	Type string
}

// Signature is what Register checks a callback against: its declared
// parameter names/types and its declared return type.
type Signature struct {
	Args   []RegisteredArg
	Return string
}

func (s Signature) arg(name string) (RegisteredArg, bool) {
	for _, a := range s.Args {
		if a.Name == name {
			return a, true
		}
	}
	return RegisteredArg{}, false
}

// ErrSignatureMismatch is returned by Register when a callback's
// declared Signature doesn't match the event it's registered against
// (spec §4.4/§7).
type ErrSignatureMismatch struct{ Msg string }

func (e *ErrSignatureMismatch) Error() string { return "bus: signature mismatch: " + e.Msg }

// TypesEqual compares two wire-type designators for equality the way
// spec §4.4 requires: "leaf class names case-insensitively after
// stripping typing prefixes, and recurses into list/dict/tuple".
//
// Ported from
// _examples/original_source/server/src/utils/misc.py:is_types_equals.
func TypesEqual(a, b string) bool {
	a = stripTypingPrefix(a)
	b = stripTypingPrefix(b)

	if a == b {
		return true
	}

	if inner, ok := stripWrapper(a, "list["); ok {
		if innerB, ok := stripWrapper(b, "list["); ok {
			return TypesEqual(inner, innerB)
		}
		return false
	}
	if inner, ok := stripWrapper(a, "tuple["); ok {
		if innerB, ok := stripWrapper(b, "tuple["); ok {
			return TypesEqual(inner, innerB)
		}
		return false
	}
	if inner, ok := stripWrapper(a, "dict["); ok {
		innerB, ok := stripWrapper(b, "dict[")
		if !ok {
			return false
		}
		argsA := splitTopLevelComma(inner)
		argsB := splitTopLevelComma(innerB)
		if len(argsA) != 2 || len(argsB) != 2 {
			return false
		}
		return TypesEqual(argsA[0], argsB[0]) && TypesEqual(argsA[1], argsB[1])
	}

	return strings.EqualFold(leafClassName(a), leafClassName(b))
}

func stripTypingPrefix(t string) string {
	t = strings.ReplaceAll(t, "typing.", "")
	t = strings.ReplaceAll(t, "typing_extensions.", "")
	return t
}

// stripWrapper reports whether lowercase(t) has the given lowercase
// prefix (e.g. "list[") and a trailing "]", returning the inner
// substring.
func stripWrapper(t string, lowerPrefix string) (string, bool) {
	if len(t) < len(lowerPrefix)+1 || !strings.EqualFold(t[:len(lowerPrefix)], lowerPrefix) || !strings.HasSuffix(t, "]") {
		return "", false
	}
	return t[len(lowerPrefix) : len(t)-1], true
}

func splitTopLevelComma(s string) []string {
	var parts []string
	depth := 0
	last := 0
	for i, c := range s {
		switch c {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[last:i]))
				last = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[last:]))
	return parts
}

func leafClassName(t string) string {
	idx := strings.LastIndex(t, ".")
	if idx < 0 {
		return t
	}
	return t[idx+1:]
}
