package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateLocation(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{"origin", 0, 0, false},
		{"corners", 90, 180, false},
		{"negative corners", -90, -180, false},
		{"fractional", 40.7128, -74.006, false},
		{"lat too high", 90.5, 0, true},
		{"lat too low", -91, 0, true},
		{"lon too high", 0, 180.01, true},
		{"lon too low", 0, -200, true},
		{"nan", math.NaN(), 0, true},
		{"infinite lon", 0, math.Inf(1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLocation(tt.lat, tt.lon)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidLocation)

			var locErr *LocationError
			require.True(t, errors.As(err, &locErr))
			assert.NotEmpty(t, locErr.Reason)
		})
	}
}
