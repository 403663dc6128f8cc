// Package token 提供代币金额的定点数表示
package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Amount 表示代币金额（使用链上最小单位）
//
// 金额系统：
//   - 1 个代币 = 10^18 基础单位（与ERC-20 decimals=18一致）
//   - 使用 *big.Int 确保精确计算，不经过浮点数
//   - 从十进制字符串转换时超出18位的小数直接截断，不做四舍五入
type Amount struct {
	value *big.Int
}

const (
	// Decimals 代币小数位数
	Decimals = 18
)

var (
	// ErrInvalidAmount 无效的金额
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNegativeAmount 负数金额
	ErrNegativeAmount = errors.New("negative amount")

	// ErrInsufficientAmount 金额不足
	ErrInsufficientAmount = errors.New("insufficient amount")

	// unitsPerToken 10^18
	unitsPerToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
)

// ParseAmount 从十进制字符串创建Amount
//
// 示例：
//
//	"10"        → 10 * 10^18
//	"1.5"       → 1.5 * 10^18
//	"0.0000000000000000019" → 1（第19位小数被截断）
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	if strings.HasPrefix(s, "-") {
		return Amount{}, ErrNegativeAmount
	}
	s = strings.TrimPrefix(s, "+")

	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if intPart == "" && (!hasDot || fracPart == "") {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !isDigits(intPart) || !isDigits(fracPart) {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	if len(fracPart) > Decimals {
		fracPart = fracPart[:Decimals]
	}
	fracPart += strings.Repeat("0", Decimals-len(fracPart))

	value, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Amount{value: value}, nil
}

// MustParseAmount 同 ParseAmount，解析失败时 panic，仅用于常量和测试
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NewAmountFromBigInt 从链上整数（已按10^18缩放）创建Amount
func NewAmountFromBigInt(value *big.Int) (Amount, error) {
	if value == nil {
		return Amount{}, fmt.Errorf("%w: nil value", ErrInvalidAmount)
	}
	if value.Sign() < 0 {
		return Amount{}, ErrNegativeAmount
	}
	return Amount{value: new(big.Int).Set(value)}, nil
}

// NewAmountFromUnits 从基础单位创建Amount
func NewAmountFromUnits(units uint64) Amount {
	return Amount{value: new(big.Int).SetUint64(units)}
}

// NewAmountFromTokens 从整数个代币创建Amount
func NewAmountFromTokens(tokens uint64) Amount {
	v := new(big.Int).SetUint64(tokens)
	return Amount{value: v.Mul(v, unitsPerToken)}
}

// Zero 返回零金额
func Zero() Amount {
	return Amount{value: new(big.Int)}
}

func (a Amount) int() *big.Int {
	if a.value == nil {
		return new(big.Int)
	}
	return a.value
}

// Add 加法：a + b
func (a Amount) Add(b Amount) Amount {
	return Amount{value: new(big.Int).Add(a.int(), b.int())}
}

// Sub 减法：a - b，结果为负时返回 ErrInsufficientAmount
func (a Amount) Sub(b Amount) (Amount, error) {
	result := new(big.Int).Sub(a.int(), b.int())
	if result.Sign() < 0 {
		return Amount{}, ErrInsufficientAmount
	}
	return Amount{value: result}, nil
}

// MulInt 乘以整数数量：单价 × 数量
func (a Amount) MulInt(n uint64) Amount {
	return Amount{value: new(big.Int).Mul(a.int(), new(big.Int).SetUint64(n))}
}

// Cmp 比较两个金额，返回 -1 / 0 / 1
func (a Amount) Cmp(b Amount) int {
	return a.int().Cmp(b.int())
}

// IsZero 判断金额是否为零
func (a Amount) IsZero() bool {
	return a.int().Sign() == 0
}

// LessThan 判断 a < b
func (a Amount) LessThan(b Amount) bool {
	return a.Cmp(b) < 0
}

// GreaterThanOrEqual 判断 a >= b
func (a Amount) GreaterThanOrEqual(b Amount) bool {
	return a.Cmp(b) >= 0
}

// Equal 判断 a == b
func (a Amount) Equal(b Amount) bool {
	return a.Cmp(b) == 0
}

// BigInt 返回链上整数表示的副本
func (a Amount) BigInt() *big.Int {
	return new(big.Int).Set(a.int())
}

// StringFixed 转换为保留18位小数的字符串
//
// 示例：
//
//	1500000000000000000 → "1.500000000000000000"
func (a Amount) StringFixed() string {
	q, r := new(big.Int).QuoRem(a.int(), unitsPerToken, new(big.Int))
	frac := r.String()
	return q.String() + "." + strings.Repeat("0", Decimals-len(frac)) + frac
}

// String 转换为去掉末尾0的十进制字符串
//
// 示例：
//
//	1500000000000000000 → "1.5"
//	10000000000000000000 → "10"
func (a Amount) String() string {
	s := strings.TrimRight(a.StringFixed(), "0")
	return strings.TrimSuffix(s, ".")
}

// MarshalText 以十进制字符串输出，便于JSON展示
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText 从十进制字符串解析
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
