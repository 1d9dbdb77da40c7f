package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Sign is the sign convention a concept's values must follow.
type Sign string

const (
	SignAny      Sign = "any"
	SignPositive Sign = "positive"
	SignNegative Sign = "negative"
)

// ParseSign converts a string into a Sign. Empty input means SignAny.
func ParseSign(s string) (Sign, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return SignAny, nil
	case "positive", "+":
		return SignPositive, nil
	case "negative", "-":
		return SignNegative, nil
	default:
		return "", eris.Errorf("unknown sign convention: %q (valid: any, positive, negative)", s)
	}
}

// ConceptEntry is one row of the concept catalog.
type ConceptEntry struct {
	Code      string `json:"code" yaml:"code"`
	Name      string `json:"name" yaml:"name"`
	Group     string `json:"group,omitempty" yaml:"group"`
	Mandatory bool   `json:"mandatory" yaml:"mandatory"`
	Sign      Sign   `json:"sign,omitempty" yaml:"sign"`
}
