package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		region      string
		expected    string
		expectError bool
	}{
		{name: "national format", input: "0712345678", region: "KE", expected: "+254712345678"},
		{name: "already international", input: "+254712345678", region: "KE", expected: "+254712345678"},
		{name: "spaces", input: "0712 345 678", region: "KE", expected: "+254712345678"},
		{name: "too short", input: "0712", region: "KE", expectError: true},
		{name: "not a number", input: "call me", region: "KE", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.input, tt.region)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
