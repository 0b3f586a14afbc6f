// Package config handles application configuration.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FlexBool is a boolean type that can be unmarshalled from a boolean, a string, or a number.
type FlexBool bool

// UnmarshalYAML implements the yaml.Unmarshaler interface for FlexBool.
func (fb *FlexBool) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!!bool":
		var b bool
		if err := value.Decode(&b); err != nil {
			return err
		}
		*fb = FlexBool(b)
	case "!!str":
		b, err := strconv.ParseBool(value.Value)
		if err != nil {
			return fmt.Errorf("cannot unmarshal string %q into FlexBool", value.Value)
		}
		*fb = FlexBool(b)
	case "!!int":
		i, err := strconv.Atoi(value.Value)
		if err != nil {
			return err
		}
		*fb = FlexBool(i != 0)
	case "!!float":
		f, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return err
		}
		*fb = FlexBool(f != 0)
	default:
		return fmt.Errorf("cannot unmarshal %s into FlexBool", value.Tag)
	}
	return nil
}

// Bps is a rate expressed in basis points. It accepts a plain number
// (5, 2.5) or a suffixed string ("5bps", "2.5 bp").
type Bps float64

// Fraction converts the basis points into a plain fraction (5bps -> 0.0005).
func (b Bps) Fraction() float64 {
	return float64(b) / 10000
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Bps.
func (b *Bps) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!!int", "!!float":
		f, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return err
		}
		*b = Bps(f)
	case "!!str":
		s := strings.TrimSpace(strings.ToLower(value.Value))
		s = strings.TrimSuffix(s, "bps")
		s = strings.TrimSuffix(s, "bp")
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("cannot unmarshal string %q into Bps", value.Value)
		}
		*b = Bps(f)
	default:
		return fmt.Errorf("cannot unmarshal %s into Bps", value.Tag)
	}
	return nil
}
