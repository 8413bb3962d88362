package mathhelp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCeilDiv(t *testing.T) {
	tests := []struct {
		n, d, want int
	}{
		{n: 0, d: 256, want: 0},
		{n: 1, d: 256, want: 1},
		{n: 256, d: 256, want: 1},
		{n: 257, d: 256, want: 2},
		{n: 300, d: 256, want: 2},
		{n: 300, d: 512, want: 1},
		{n: -5, d: 256, want: 0},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, CeilDiv(tt.n, tt.d), "CeilDiv(%d, %d)", tt.n, tt.d)
	}
}

func TestCeilDivFloat(t *testing.T) {
	assert.Equal(t, uint(2), CeilDivFloat(300, 256))
	assert.Equal(t, uint(1), CeilDivFloat(200, 256))
	assert.Equal(t, uint(0), CeilDivFloat(0, 256))
	assert.Equal(t, uint(0), CeilDivFloat(300, 0))
	assert.Equal(t, uint(0), CeilDivFloat(300, -256))
}

func TestPow2(t *testing.T) {
	assert.Equal(t, uint(1), Pow2(0))
	assert.Equal(t, uint(8), Pow2(3))
}
