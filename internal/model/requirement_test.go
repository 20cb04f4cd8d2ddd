package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Requirement
	}{
		{"xp total", `{"type":"xp_total","value":1000}`, Requirement{Type: RequirementXPTotal, Value: 1000}},
		{"level", `{"type":"level","value":10}`, Requirement{Type: RequirementLevel, Value: 10}},
		{"streak", `{"type":"streak","days":7}`, Requirement{Type: RequirementStreak, Days: 7}},
		{"badge count", `{"type":"badge_count","value":3}`, Requirement{Type: RequirementBadgeCount, Value: 3}},
		{"messages", `{"type":"message_count","value":50}`, Requirement{Type: RequirementMessageCount, Value: 50}},
		{"purchases", `{"type":"purchase_count","value":1}`, Requirement{Type: RequirementPurchaseCount, Value: 1}},
		{
			"custom",
			`{"type":"custom","rules":[{"type":"xp_in_timeframe","value":500,"days":7}]}`,
			Requirement{Type: RequirementCustom, Rules: []CustomRule{{Type: CustomXPInTimeframe, Value: 500, Days: 7}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequirement([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRequirement_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"unknown type", `{"type":"karma","value":1}`, ErrUnknownRequirement},
		{"missing type", `{"value":1}`, ErrUnknownRequirement},
		{"unknown custom rule", `{"type":"custom","rules":[{"type":"votes","value":1}]}`, ErrUnknownRequirement},
		{"zero value", `{"type":"xp_total","value":0}`, ErrInvalidRequirement},
		{"negative days", `{"type":"streak","days":-2}`, ErrInvalidRequirement},
		{"fractional value", `{"type":"level","value":2.5}`, ErrInvalidRequirement},
		{"missing value", `{"type":"level"}`, ErrInvalidRequirement},
		{"empty custom", `{"type":"custom","rules":[]}`, ErrInvalidRequirement},
		{"custom missing days", `{"type":"custom","rules":[{"type":"xp_in_timeframe","value":10}]}`, ErrInvalidRequirement},
		{"not json", `xp_total`, ErrInvalidRequirement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequirement([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestRequirement_EncodingParsesBack(t *testing.T) {
	for _, raw := range []string{
		`{"type":"xp_total","value":1000}`,
		`{"type":"streak","days":7}`,
		`{"type":"custom","rules":[{"type":"xp_in_timeframe","value":500,"days":7}]}`,
	} {
		want, err := ParseRequirement([]byte(raw))
		require.NoError(t, err)

		data, err := json.Marshal(want)
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(data))

		var got Requirement
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, want, got)
	}

	var bad Requirement
	err := json.Unmarshal([]byte(`{"type":"karma","value":1}`), &bad)
	assert.True(t, IsRequirementError(err))
}
