package commission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name           string
		grossAmount    int64
		rateBps        int64
		wantCommission int64
		wantSeller     int64
	}{
		{"整除场景", 10000, 1000, 1000, 9000},
		{"一分钱也能拆", 1, 1000, 0, 1},
		{"四舍五入进位", 999, 1000, 100, 899}, // 99.9 -> 100
		{"恰好0.5归平台", 5, 1000, 1, 4},     // 0.5 -> 1
		{"零抽成", 10000, 0, 0, 10000},
		{"全额抽成", 10000, 10000, 10000, 0},
		{"大额不溢出", 9_000_000_000, 250, 225_000_000, 8_775_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commission, seller, err := Split(tt.grossAmount, tt.rateBps)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCommission, commission)
			assert.Equal(t, tt.wantSeller, seller)
			// 守恒：拆分结果之和必须恒等于总额
			assert.Equal(t, tt.grossAmount, commission+seller)
		})
	}
}

func TestSplitInvalidAmount(t *testing.T) {
	_, _, err := Split(0, 1000)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = Split(-100, 1000)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSplitInvalidRate(t *testing.T) {
	_, _, err := Split(10000, -1)
	assert.ErrorIs(t, err, ErrInvalidRate)

	_, _, err = Split(10000, 10001)
	assert.ErrorIs(t, err, ErrInvalidRate)
}
