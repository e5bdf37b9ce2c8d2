package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
)

// decimalLiteral is the JSON number grammar; fractions ("1/3") and base
// prefixes ("0x10") do not match.
var decimalLiteral = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// Decimal is a price as written by the seller. It accepts JSON numbers and
// numeric strings and keeps the original text so no precision is lost.
type Decimal string

func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*d = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = Decimal(s)
	case len(data) > 0 && (data[0] == '-' || (data[0] >= '0' && data[0] <= '9')):
		*d = Decimal(data)
	default:
		return fmt.Errorf("amount must be a number or numeric string, got %s", data)
	}
	return nil
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	if d == "" {
		return []byte("null"), nil
	}
	var n json.Number
	if err := json.Unmarshal([]byte(d), &n); err == nil && n.String() == string(d) {
		return []byte(d), nil
	}
	return json.Marshal(string(d))
}

func (d Decimal) String() string {
	return string(d)
}

// Rat parses the amount as an exact rational.
func (d Decimal) Rat() (*big.Rat, error) {
	if d == "" {
		return nil, fmt.Errorf("amount is missing")
	}
	if !decimalLiteral.MatchString(string(d)) {
		return nil, fmt.Errorf("invalid amount: %q", string(d))
	}
	r, ok := new(big.Rat).SetString(string(d))
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", string(d))
	}
	return r, nil
}

// IsValidPrice reports whether the amount parses and is not negative.
func (d Decimal) IsValidPrice() bool {
	r, err := d.Rat()
	return err == nil && r.Sign() >= 0
}

// AtomicAmount is a price expressed in the asset's smallest unit.
type AtomicAmount struct {
	MaxAmountRequired string
	Asset             Asset
}

// AtomicConverter turns a decimal price into atomic units of the asset
// accepted on a network.
type AtomicConverter func(amount Decimal, network string) (*AtomicAmount, error)

// ToAtomicAmount converts a decimal USDC price for the given network.
// Fractions of an atomic unit are rounded half up.
func ToAtomicAmount(amount Decimal, network string) (*AtomicAmount, error) {
	chain, err := LookupNetwork(network)
	if err != nil {
		return nil, err
	}

	r, err := amount.Rat()
	if err != nil {
		return nil, err
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative: %s", amount)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(chain.USDC.Decimals)), nil)
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(scale))

	return &AtomicAmount{
		MaxAmountRequired: roundHalfUp(scaled).String(),
		Asset:             chain.USDC,
	}, nil
}

func roundHalfUp(r *big.Rat) *big.Int {
	quo, rem := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	if new(big.Int).Mul(rem, big.NewInt(2)).Cmp(r.Denom()) >= 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}
