// Package catalog loads the declarative event catalog (spec §4.2) from
// an XML document shaped like the namespace/event/args/return tree
// parsed by
// _examples/original_source/server/src/bus/events.py:EventsType.
package catalog

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// supportedLeafTypes is the set of wire type designators a leaf EventArg
// may declare. Composite designators (list[...], tuple[...],
// dict[...]) are recognized by prefix, matching wire/value's
// reListType/reTupleType/reDictType.
var supportedLeafTypes = map[string]struct{}{
	"int": {}, "float": {}, "str": {}, "string": {}, "bool": {},
	"datetime": {}, "Version": {}, "Any": {},
}

// IsSupportedType reports whether typeName is a leaf type from
// spec §4.1's table, or a list[...]/tuple[...]/dict[...] composite
// wrapping (recursively) supported types.
func IsSupportedType(typeName string) bool {
	t := strings.TrimSpace(typeName)
	if _, ok := supportedLeafTypes[t]; ok {
		return true
	}
	lower := strings.ToLower(t)
	switch {
	case strings.HasPrefix(lower, "list[") && strings.HasSuffix(t, "]"):
		return IsSupportedType(t[5 : len(t)-1])
	case strings.HasPrefix(lower, "tuple[") && strings.HasSuffix(t, "]"):
		inner := t[6 : len(t)-1]
		for _, part := range splitTopLevel(inner) {
			if !IsSupportedType(part) {
				return false
			}
		}
		return true
	case strings.HasPrefix(lower, "dict[") && strings.HasSuffix(t, "]"):
		inner := t[5 : len(t)-1]
		parts := splitTopLevel(inner)
		if len(parts) != 2 {
			return false
		}
		return IsSupportedType(parts[0]) && IsSupportedType(parts[1])
	}
	return false
}

func splitTopLevel(s string) []string {
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

// EventArg is one named, typed, positionally-stable argument of an
// Event (spec §3).
type EventArg struct {
	Name string
	Type string
	ID   uint8
}

// Event is one entry of the catalog (spec §3): a stable id, a
// globally-unique dotted name, its ordered arguments, and a return
// type ("None" if the event carries no reply).
type Event struct {
	Name       string
	ID         uint32
	Args       []EventArg
	ReturnType string
}

// Arg returns the EventArg named name, or false if none exists.
func (e *Event) Arg(name string) (EventArg, bool) {
	for _, a := range e.Args {
		if a.Name == name {
			return a, true
		}
	}
	return EventArg{}, false
}

const responseIDOffset = 0x10000

// IsResponseEvent reports whether id designates a synthesized
// response event (spec §3: "id | 0x10000").
func IsResponseEvent(id uint32) bool {
	return id > 0xFFFF
}

// ReturnEvent derives the synthetic response event for e: id with the
// high bit set, name suffixed ".RETURN", a single "result" argument of
// e's return type, and ReturnType "None" (spec §3). Response events
// are never stored in the Catalog; they're computed on demand, here
// and by Catalog.LookupByID for ids > 0xFFFF.
func (e *Event) ReturnEvent() (*Event, error) {
	if IsResponseEvent(e.ID) {
		return nil, fmt.Errorf("catalog: event %s is already a response event", e.Name)
	}
	if e.ReturnType == "" || e.ReturnType == "None" {
		return nil, fmt.Errorf("catalog: event %s has no return type", e.Name)
	}
	return &Event{
		Name:       e.Name + ".RETURN",
		ID:         e.ID + responseIDOffset,
		Args:       []EventArg{{Name: "result", Type: e.ReturnType, ID: 1}},
		ReturnType: "None",
	}, nil
}

// Error is a catalog-loading failure (spec §7: "Catalog error ...
// Fatal; abort").
type Error struct {
	Msg string
}

func (e *Error) Error() string { return "catalog: " + e.Msg }

// Catalog is the read-only, once-built mapping of event id to Event
// (spec §3).
type Catalog struct {
	byID   map[uint32]*Event
	byName map[string]*Event
}

// xmlNamespace and xmlEvent mirror the declarative source format of
// spec §6: <namespace name=".."><event name=".." id="0x.."><args>
// <arg name=".." type=".." id="0x.."/></args><return type=".."/>
// </event>...</namespace>.
type xmlNamespace struct {
	Name        string         `xml:"name,attr"`
	Namespaces  []xmlNamespace `xml:"namespace"`
	Events      []xmlEvent     `xml:"event"`
}

type xmlEvent struct {
	Name string `xml:"name,attr"`
	ID   string `xml:"id,attr"`
	Args struct {
		Arg []xmlArg `xml:"arg"`
	} `xml:"args"`
	Return struct {
		Type string `xml:"type,attr"`
	} `xml:"return"`
}

type xmlArg struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
	ID   string `xml:"id,attr"`
}

type xmlRoot struct {
	XMLName    xml.Name       `xml:"namespace"`
	Name       string         `xml:"name,attr"`
	Namespaces []xmlNamespace `xml:"namespace"`
	Events     []xmlEvent     `xml:"event"`
}

// LoadFile parses the catalog at path (spec §6's XML form).
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return Load(data)
}

// Load parses the catalog from an in-memory XML document.
func Load(data []byte) (*Catalog, error) {
	var root xmlRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, &Error{Msg: fmt.Sprintf("failed to parse catalog XML: %s", err)}
	}
	// The document's root <namespace> element is a transparent
	// container: per spec §6, "the full event name is the dotted path
	// from root to leaf", and the root itself is not part of that
	// path. Only its children's names contribute segments.
	c := &Catalog{byID: map[uint32]*Event{}, byName: map[string]*Event{}}
	top := xmlNamespace{Name: root.Name, Namespaces: root.Namespaces, Events: root.Events}
	if err := c.parseNamespace(top, ""); err != nil {
		return nil, err
	}
	return c, nil
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func parseHexID(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func (c *Catalog) parseNamespace(ns xmlNamespace, namespaceName string) error {
	for _, sub := range ns.Namespaces {
		if err := c.parseNamespace(sub, join(namespaceName, sub.Name)); err != nil {
			return err
		}
	}
	for _, ev := range ns.Events {
		name := join(namespaceName, ev.Name)
		id, err := parseHexID(ev.ID)
		if err != nil {
			return &Error{Msg: fmt.Sprintf("event %s has an invalid id %q: %s", name, ev.ID, err)}
		}
		if id == 0 {
			return &Error{Msg: fmt.Sprintf("event %s has id 0", name)}
		}
		if id > 0xFFFF {
			return &Error{Msg: fmt.Sprintf("event %s has an id %#x exceeding 0xFFFF", name, id)}
		}

		args := make([]EventArg, 0, len(ev.Args.Arg))
		seenArgIDs := map[uint8]struct{}{}
		for _, a := range ev.Args.Arg {
			argID, err := parseHexID(a.ID)
			if err != nil {
				return &Error{Msg: fmt.Sprintf("event %s arg %s has an invalid id %q: %s", name, a.Name, a.ID, err)}
			}
			if _, dup := seenArgIDs[uint8(argID)]; dup {
				return &Error{Msg: fmt.Sprintf("event %s has a duplicate arg id %#x", name, argID)}
			}
			seenArgIDs[uint8(argID)] = struct{}{}
			if !IsSupportedType(a.Type) {
				return &Error{Msg: fmt.Sprintf("event %s arg %s has an unsupported type %q", name, a.Name, a.Type)}
			}
			args = append(args, EventArg{Name: a.Name, Type: a.Type, ID: uint8(argID)})
		}

		returnType := ev.Return.Type
		if returnType == "" {
			returnType = "None"
		}
		if returnType != "None" && !IsSupportedType(returnType) {
			return &Error{Msg: fmt.Sprintf("event %s has an unsupported return type %q", name, returnType)}
		}

		if existing, dup := c.byID[id]; dup {
			// The original loader (events.py) logs this and overwrites;
			// this module keeps the same diagnostic but treats it as
			// fatal instead, per spec.md's catalog-uniqueness invariant
			// — nothing is overwritten here, the load aborts.
			return &Error{Msg: fmt.Sprintf("event id %#x already exists: %s -> %s", id, existing.Name, name)}
		}
		if _, dup := c.byName[name]; dup {
			return &Error{Msg: fmt.Sprintf("event name %s already exists", name)}
		}

		e := &Event{Name: name, ID: id, Args: args, ReturnType: returnType}
		c.byID[id] = e
		c.byName[name] = e
	}
	return nil
}

// LookupByID returns the Event for id. ids above 0xFFFF synthesize a
// response event from the low-16-bit parent (spec §3/§4.2).
func (c *Catalog) LookupByID(id uint32) (*Event, error) {
	if IsResponseEvent(id) {
		parent, err := c.LookupByID(id - responseIDOffset)
		if err != nil {
			return nil, err
		}
		return parent.ReturnEvent()
	}
	e, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("catalog: event id %#x not found", id)
	}
	return e, nil
}

// LookupByName returns the Event with the given dotted name.
func (c *Catalog) LookupByName(name string) (*Event, error) {
	e, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("catalog: event %q not found", name)
	}
	return e, nil
}

// IDs returns every event id registered in the catalog.
func (c *Catalog) IDs() []uint32 {
	ids := make([]uint32, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of events in the catalog.
func (c *Catalog) Len() int { return len(c.byID) }
