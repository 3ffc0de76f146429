// Package fixedpoint implements exponent-tagged integer arithmetic for the
// price/fee/quote computations that flow through the routing and execution
// packages. Floating point is never used: every quantity is represented as
// coef * 10^exp with coef a uint128 and exp a signed shift, and every
// intermediate product is carried in a widened (256-bit) type before being
// downcast back to uint128.
package fixedpoint

import (
	"math/big"
	"strings"
	"sync"

	"github.com/holiman/uint256"
)

// Decimal is coef * 10^Exp.
type Decimal struct {
	Coef *uint256.Int // always holds a value that fits in 128 bits
	Exp  int8
}

var maxUint128 = func() *uint256.Int {
	one := uint256.NewInt(1)
	shift := new(uint256.Int).Lsh(one, 128)
	return new(uint256.Int).Sub(shift, one)
}()

// New builds a Decimal from an explicit coefficient and exponent.
func New(coef uint64, exp int8) Decimal {
	return Decimal{Coef: uint256.NewInt(coef), Exp: exp}
}

// FromStringAndExp parses a signed-free decimal string (optional single '.')
// and shifts its decimal point right by exp digits, truncating any excess
// fractional digits. The resulting Decimal has exponent -exp.
//
// e.g. FromStringAndExp("0.00000012345", 10) -> Decimal{Coef: 1234, Exp: -10}
func FromStringAndExp(numStr string, exp uint8) Decimal {
	coef := shiftDecimalRightAndTruncate(numStr, exp)
	return Decimal{Coef: coef, Exp: -int8(exp)}
}

// AddExp returns a Decimal with the same coefficient and exp shifted by delta.
func (d Decimal) AddExp(delta int8) Decimal {
	return Decimal{Coef: new(uint256.Int).Set(d.Coef), Exp: d.Exp + delta}
}

// Val returns coef * 10^exp downcast to uint128 (truncated toward zero on a
// negative exponent).
func (d Decimal) Val() *uint256.Int {
	if d.Exp >= 0 {
		return clampUint128(new(uint256.Int).Mul(d.Coef, pow10(uint32(d.Exp))))
	}
	return new(uint256.Int).Div(d.Coef, pow10(uint32(-d.Exp)))
}

// MulSmall multiplies two Decimals whose coefficients are small enough that
// their product does not overflow uint128 (true of any Decimal constructed by
// FromStringAndExp with a modest exp).
func (d Decimal) MulSmall(other Decimal) Decimal {
	return Decimal{
		Coef: clampUint128(new(uint256.Int).Mul(d.Coef, other.Coef)),
		Exp:  d.Exp + other.Exp,
	}
}

// MulUint128 computes d * other, widening the intermediate product to 256
// bits before rescaling by 10^exp, and returns the uint128-truncated result.
func (d Decimal) MulUint128(other *uint256.Int) *uint256.Int {
	numerator := new(uint256.Int).Mul(d.Coef, other) // d.Coef, other <= 2^128-1 each, product fits in 256 bits
	if d.Exp >= 0 {
		return clampUint128(new(uint256.Int).Mul(numerator, pow10(uint32(d.Exp))))
	}
	return clampUint128(new(uint256.Int).Div(numerator, pow10(uint32(-d.Exp))))
}

// DivUint128 computes num / denom, returning math.MaxUint128-equivalent on a
// zero coefficient (saturating rather than panicking on division by zero).
func DivUint128(num *uint256.Int, denom Decimal) *uint256.Int {
	if denom.Coef.IsZero() {
		return new(uint256.Int).Set(maxUint128)
	}
	if denom.Exp >= 0 {
		return new(uint256.Int).Div(num, denom.Val())
	}
	widened := new(uint256.Int).Mul(num, pow10(uint32(-denom.Exp)))
	return clampUint128(new(uint256.Int).Div(widened, denom.Coef))
}

// MulDivUint128 computes num * mulFactor / divFactor with every intermediate
// product carried in a widened type, producing the mathematically correct
// rounded-toward-zero result for any input within range. Returns
// math.MaxUint128-equivalent on a zero divFactor coefficient.
func MulDivUint128(num *uint256.Int, mulFactor, divFactor Decimal) *uint256.Int {
	exp := int(mulFactor.Exp) - int(divFactor.Exp)
	if divFactor.Coef.IsZero() {
		return new(uint256.Int).Set(maxUint128)
	}
	if exp >= 0 {
		top := new(uint256.Int).Mul(num, mulFactor.Coef)
		top = wideningMul(top, pow10(uint32(exp)))
		return clampUint128(new(uint256.Int).Div(top, divFactor.Coef))
	}
	top := new(uint256.Int).Mul(num, mulFactor.Coef)
	bottom := new(uint256.Int).Mul(divFactor.Coef, pow10(uint32(-exp)))
	return clampUint128(new(uint256.Int).Div(top, bottom))
}

// Add returns a + b, rescaling both operands to the lesser of the two
// exponents before summing coefficients, clamping the result to uint128.
func Add(a, b Decimal) Decimal {
	exp := a.Exp
	if b.Exp < exp {
		exp = b.Exp
	}
	sum := clampUint128(new(uint256.Int).Add(rescaleCoef(a, exp), rescaleCoef(b, exp)))
	return Decimal{Coef: sum, Exp: exp}
}

func rescaleCoef(d Decimal, targetExp int8) *uint256.Int {
	shift := int(d.Exp) - int(targetExp)
	if shift <= 0 {
		return new(uint256.Int).Set(d.Coef)
	}
	return clampUint128(new(uint256.Int).Mul(d.Coef, pow10(uint32(shift))))
}

// wideningMul multiplies two values that may individually approach 256 bits
// by routing through math/big, needed for the "exp >= 0" branch where top
// can exceed a single 256-bit multiply's safe headroom once num,
// mulFactor.coef and 10^exp are all large.
func wideningMul(a, b *uint256.Int) *uint256.Int {
	prod := new(big.Int).Mul(a.ToBig(), b.ToBig())
	out, overflow := uint256.FromBig(prod)
	if overflow {
		// Saturate rather than wrap; callers divide this down immediately,
		// and a saturated numerator still divides toward the true quotient
		// once it exceeds any divisor the protocol deals in.
		return new(uint256.Int).Not(uint256.NewInt(0))
	}
	return out
}

func clampUint128(v *uint256.Int) *uint256.Int {
	if v.Gt(maxUint128) {
		return new(uint256.Int).Set(maxUint128)
	}
	return v
}

var (
	pow10Mu    sync.Mutex
	pow10Cache = map[uint32]*uint256.Int{}
)

func pow10(n uint32) *uint256.Int {
	pow10Mu.Lock()
	defer pow10Mu.Unlock()
	if v, ok := pow10Cache[n]; ok {
		return v
	}
	v := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
	pow10Cache[n] = v
	return v
}

// shiftDecimalRightAndTruncate shifts num's decimal point right by numShifts
// digits, truncating any excess fractional digits, and parses the result as
// an unsigned integer. Panics if num is not numerical - callers only ever
// pass trusted, pre-validated numeric literals (pool reserves, registry
// constants), never user input.
func shiftDecimalRightAndTruncate(num string, numShifts uint8) *uint256.Int {
	var shifted strings.Builder
	remainingShifts := int(numShifts)
	if decimalIdx := strings.IndexByte(num, '.'); decimalIdx >= 0 {
		shifted.WriteString(num[:decimalIdx])
		numRemaining := len(num) - decimalIdx - 1
		shiftedAmt := numRemaining
		if int(numShifts) < shiftedAmt {
			shiftedAmt = int(numShifts)
		}
		endIdx := decimalIdx + shiftedAmt + 1
		shifted.WriteString(num[decimalIdx+1 : endIdx])
		remainingShifts -= shiftedAmt
	} else {
		shifted.WriteString(num)
	}
	shifted.WriteString(strings.Repeat("0", remainingShifts))

	out, err := uint256.FromDecimal(shifted.String())
	if err != nil {
		panic("fixedpoint: string must be numerical: " + num)
	}
	return out
}
