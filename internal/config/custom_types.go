package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FlexBool accepts true/false, yes/no, on/off, quoted forms of those and numbers
// (non-zero is true).
type FlexBool bool

// Bool returns the plain boolean value.
func (fb FlexBool) Bool() bool {
	return bool(fb)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (fb *FlexBool) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar for a boolean switch", value.Line)
	}
	b, err := parseFlexBool(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*fb = FlexBool(b)
	return nil
}

func parseFlexBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "t", "y":
		return true, nil
	case "false", "no", "off", "f", "n", "":
		return false, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0, nil
	}
	return false, fmt.Errorf("cannot use %q as a boolean", s)
}
