package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second},   // 64s capped
		{100, 60 * time.Second}, // still max 60s
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CalculateBackoff(tt.retryCount), "retry %d", tt.retryCount)
	}
}
