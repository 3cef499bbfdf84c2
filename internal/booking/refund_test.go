package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefundFor(t *testing.T) {
	tests := []struct {
		name       string
		amount     int64
		hoursUntil float64
		want       int64
		wantNote   bool
	}{
		{"well outside window", 10000, 48, 10000, false},
		{"exactly on the boundary", 10000, 24, 10000, false},
		{"just inside window", 10000, 23.9, 8000, true},
		{"hours before start", 10000, 10, 8000, true},
		{"rounds down on odd amounts", 9999, 1, 7999, true},
		{"zero amount", 0, 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, note := RefundFor(tt.amount, tt.hoursUntil)
			assert.Equal(t, tt.want, got)
			if tt.wantNote {
				assert.NotEmpty(t, note)
			} else {
				assert.Empty(t, note)
			}
		})
	}
}
