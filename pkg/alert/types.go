package alert

import (
	"fmt"
	"strings"
)

// Type identifies one alert channel kind.
// The numeric value is the channel's bit in AlertConfig.AlertType and is
// persisted, so existing values must never change.
type Type int

const (
	Email        Type = 1
	DingTalk     Type = 2
	WeCom        Type = 4
	HTTPCallback Type = 8
	Lark         Type = 16
)

// registry lists every known type in dispatch order.
var registry = []struct {
	typ  Type
	name string
}{
	{Email, "email"},
	{DingTalk, "dingtalk"},
	{WeCom, "wecom"},
	{HTTPCallback, "http_callback"},
	{Lark, "lark"},
}

// Types returns all known alert types in registry order
func Types() []Type {
	types := make([]Type, len(registry))
	for i, entry := range registry {
		types[i] = entry.typ
	}
	return types
}

// String returns the channel name of the type
func (t Type) String() string {
	for _, entry := range registry {
		if entry.typ == t {
			return entry.name
		}
	}
	return fmt.Sprintf("alert_type(%d)", int(t))
}

// ParseType returns the type with the given channel name
func ParseType(name string) (Type, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, entry := range registry {
		if entry.name == name {
			return entry.typ, nil
		}
	}
	return 0, fmt.Errorf("unknown alert type: %q", name)
}

// Decode returns the known types whose bit is set in mask, in registry order.
// Bits without a registered type are ignored.
func Decode(mask int) []Type {
	if mask <= 0 {
		return nil
	}
	var types []Type
	for _, entry := range registry {
		if mask&int(entry.typ) != 0 {
			types = append(types, entry.typ)
		}
	}
	return types
}

// Encode returns the bitmask for the given types
func Encode(types []Type) int {
	mask := 0
	for _, t := range types {
		mask |= int(t)
	}
	return mask
}

// EncodeNames parses channel names and returns their bitmask
func EncodeNames(names []string) (int, error) {
	types := make([]Type, 0, len(names))
	for _, name := range names {
		t, err := ParseType(name)
		if err != nil {
			return 0, err
		}
		types = append(types, t)
	}
	return Encode(types), nil
}
