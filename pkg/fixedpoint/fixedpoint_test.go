package fixedpoint

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestAdd_SameExp(t *testing.T) {
	got := Add(New(150, -2), New(25, -2))
	assert.Equal(t, New(175, -2), got)
}

func TestAdd_RescalesToLesserExp(t *testing.T) {
	// 1.5 (exp -2, coef 150) + 2 (exp 0, coef 2) -> rescale 2 down to exp -2: coef 200 -> sum 350
	got := Add(New(150, -2), New(2, 0))
	assert.Equal(t, int8(-2), got.Exp)
	assert.Equal(t, u(350), got.Coef)
}

func TestShiftDecimalRightAndTruncate(t *testing.T) {
	assert.Equal(t, u(1234), shiftDecimalRightAndTruncate("0.00000012345", 10))
	assert.Equal(t, u(0), shiftDecimalRightAndTruncate("0.00000012345", 5))
	assert.Equal(t, u(123450000), shiftDecimalRightAndTruncate("0.00000012345", 15))
	assert.Equal(t, u(1234500000000000000), shiftDecimalRightAndTruncate("0.00000012345", 25))
	assert.Equal(t, u(12345000), shiftDecimalRightAndTruncate("12345", 3))
	assert.Equal(t, u(123450000000010), shiftDecimalRightAndTruncate("12345.000000001", 10))
	assert.Equal(t, u(1234500000000), shiftDecimalRightAndTruncate("12345.000000001", 8))
}

func TestFromStringAndExp(t *testing.T) {
	d := FromStringAndExp("0.00000012345", 10)
	assert.Equal(t, u(1234), d.Coef)
	assert.Equal(t, int8(-10), d.Exp)
}

func TestMulUint128(t *testing.T) {
	d := FromStringAndExp("0.00000012345", 10)
	assert.Equal(t, u(123400), d.MulUint128(u(1_000_000_000_000)))
	assert.Equal(t, u(12), d.MulUint128(u(100_000_000)))
	assert.Equal(t, u(123_400_000_000_000), d.AddExp(12).MulUint128(u(1_000_000_000)))
}

func TestDivUint128(t *testing.T) {
	d := FromStringAndExp("0.00000012345", 11)
	assert.Equal(t, u(200_000_000_000), DivUint128(u(24690), d))
	assert.Equal(t, u(0), DivUint128(u(24690000), d.AddExp(15)))
	assert.Equal(t, u(2), DivUint128(u(246900000), d.AddExp(15)))
	assert.Equal(t, u(2000), DivUint128(u(246900000000), d.AddExp(15)))
}

func TestMulDivUint128(t *testing.T) {
	t.Run("equal exp", func(t *testing.T) {
		fixed1 := FromStringAndExp("0.00000024690", 11)
		fixed2 := FromStringAndExp("0.00000012345", 11)
		got, _ := uint256.FromDecimal("1000000000000000000000000000000000")
		want, _ := uint256.FromDecimal("2000000000000000000000000000000000")
		assert.Equal(t, want, MulDivUint128(got, fixed1, fixed2))
	})
	t.Run("mul factor shifted up", func(t *testing.T) {
		fixed1 := FromStringAndExp("0.00000024690", 10).AddExp(4)
		fixed2 := FromStringAndExp("0.00000012345", 11)
		got, _ := uint256.FromDecimal("1000000000000000000000000000000")
		want, _ := uint256.FromDecimal("20000000000000000000000000000000000")
		assert.Equal(t, want, MulDivUint128(got, fixed1, fixed2))
	})
	t.Run("div factor shifted up", func(t *testing.T) {
		fixed1 := FromStringAndExp("0.00000024690", 11)
		fixed2 := FromStringAndExp("0.00000012345", 11).AddExp(4)
		got, _ := uint256.FromDecimal("1000000000000000000000000000000000")
		want, _ := uint256.FromDecimal("200000000000000000000000000000")
		assert.Equal(t, want, MulDivUint128(got, fixed1, fixed2))
	})
	t.Run("large coefficients", func(t *testing.T) {
		fixed1 := FromStringAndExp("24690000", 11)
		fixed2 := FromStringAndExp("0.00000012345", 11)
		got, _ := uint256.FromDecimal("1000000000000000000000000")
		want, _ := uint256.FromDecimal("200000000000000000000000000000000000000")
		assert.Equal(t, want, MulDivUint128(got, fixed1, fixed2))
	})
}

func TestDivUint128_ZeroCoefSaturates(t *testing.T) {
	zero := New(0, 0)
	assert.Equal(t, maxUint128, DivUint128(u(100), zero))
}

func TestMulDivUint128_ZeroDivisorSaturates(t *testing.T) {
	zero := New(0, 0)
	one := New(1, 0)
	assert.Equal(t, maxUint128, MulDivUint128(u(100), one, zero))
}
