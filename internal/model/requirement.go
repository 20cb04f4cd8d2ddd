package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Requirement types.
const (
	RequirementXPTotal       = "xp_total"
	RequirementLevel         = "level"
	RequirementStreak        = "streak"
	RequirementBadgeCount    = "badge_count"
	RequirementMessageCount  = "message_count"
	RequirementPurchaseCount = "purchase_count"
	RequirementCustom        = "custom"

	CustomXPInTimeframe = "xp_in_timeframe"
)

// Requirement parse errors.
var (
	ErrUnknownRequirement = errors.New("unknown requirement type")
	ErrInvalidRequirement = errors.New("invalid requirement")
)

// Requirement is a parsed badge requirement. Which fields are meaningful
// depends on Type: Value for the threshold kinds, Days for streak, Rules for custom.
type Requirement struct {
	Type  string       `json:"type"`
	Value int64        `json:"value,omitempty"`
	Days  int          `json:"days,omitempty"`
	Rules []CustomRule `json:"rules,omitempty"`
}

// CustomRule is one clause of a custom requirement. All clauses must hold.
type CustomRule struct {
	Type  string `json:"type"`
	Value int64  `json:"value"`
	Days  int    `json:"days"`
}

type rawRequirement struct {
	Type  string            `json:"type"`
	Value *float64          `json:"value"`
	Days  *float64          `json:"days"`
	Rules []json.RawMessage `json:"rules"`
}

// ParseRequirement decodes a requirement blob into its typed form.
// Unknown types and non-positive values are rejected.
func ParseRequirement(data []byte) (Requirement, error) {
	var raw rawRequirement
	if err := json.Unmarshal(data, &raw); err != nil {
		return Requirement{}, fmt.Errorf("%w: %v", ErrInvalidRequirement, err)
	}

	req := Requirement{Type: raw.Type}
	switch raw.Type {
	case RequirementXPTotal, RequirementLevel, RequirementBadgeCount,
		RequirementMessageCount, RequirementPurchaseCount:
		v, err := positiveInt("value", raw.Value)
		if err != nil {
			return Requirement{}, err
		}
		req.Value = v
	case RequirementStreak:
		d, err := positiveInt("days", raw.Days)
		if err != nil {
			return Requirement{}, err
		}
		req.Days = int(d)
	case RequirementCustom:
		if len(raw.Rules) == 0 {
			return Requirement{}, fmt.Errorf("%w: custom requirement has no rules", ErrInvalidRequirement)
		}
		for i, r := range raw.Rules {
			rule, err := parseCustomRule(r)
			if err != nil {
				return Requirement{}, fmt.Errorf("rule %d: %w", i, err)
			}
			req.Rules = append(req.Rules, rule)
		}
	default:
		return Requirement{}, fmt.Errorf("%w: %q", ErrUnknownRequirement, raw.Type)
	}

	return req, nil
}

// UnmarshalJSON parses and validates a requirement blob.
func (r *Requirement) UnmarshalJSON(data []byte) error {
	req, err := ParseRequirement(data)
	if err != nil {
		return err
	}
	*r = req
	return nil
}

// IsRequirementError reports whether err comes from a rejected requirement.
func IsRequirementError(err error) bool {
	return errors.Is(err, ErrInvalidRequirement) || errors.Is(err, ErrUnknownRequirement)
}

func parseCustomRule(data []byte) (CustomRule, error) {
	var raw rawRequirement
	if err := json.Unmarshal(data, &raw); err != nil {
		return CustomRule{}, fmt.Errorf("%w: %v", ErrInvalidRequirement, err)
	}
	if raw.Type != CustomXPInTimeframe {
		return CustomRule{}, fmt.Errorf("%w: custom rule %q", ErrUnknownRequirement, raw.Type)
	}
	v, err := positiveInt("value", raw.Value)
	if err != nil {
		return CustomRule{}, err
	}
	d, err := positiveInt("days", raw.Days)
	if err != nil {
		return CustomRule{}, err
	}
	return CustomRule{Type: raw.Type, Value: v, Days: int(d)}, nil
}

func positiveInt(field string, v *float64) (int64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidRequirement, field)
	}
	if *v < 1 || *v != math.Trunc(*v) || *v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidRequirement, field)
	}
	return int64(*v), nil
}
