package fees

import (
    "errors"

    "github.com/shopspring/decimal"
)

var (
    ErrInvalidRate   = errors.New("invalid fee rate")
    ErrInvalidAmount = errors.New("gross amount must be positive")
)

// Monetary values are kept to two decimal places.
const scale = 2

var (
    DefaultPlatformRate = decimal.RequireFromString("0.05")
    DefaultProviderRate = decimal.RequireFromString("0.025")
)

type Calculator struct {
    platformRate decimal.Decimal
    providerRate decimal.Decimal
}

type Breakdown struct {
    Gross       decimal.Decimal
    PlatformFee decimal.Decimal
    ProviderFee decimal.Decimal
    Net         decimal.Decimal
}

func New(platformRate, providerRate decimal.Decimal) (*Calculator, error) {
    if platformRate.IsNegative() || providerRate.IsNegative() {
        return nil, ErrInvalidRate
    }
    if platformRate.Add(providerRate).GreaterThanOrEqual(decimal.NewFromInt(1)) {
        return nil, ErrInvalidRate
    }
    return &Calculator{platformRate: platformRate, providerRate: providerRate}, nil
}

func Default() *Calculator {
    return &Calculator{platformRate: DefaultPlatformRate, providerRate: DefaultProviderRate}
}

// Calculate splits gross into both fees and the artist's net amount. The net amount
// absorbs rounding so the three parts always add up to gross exactly.
func (c *Calculator) Calculate(gross decimal.Decimal) (Breakdown, error) {
    if !gross.IsPositive() {
        return Breakdown{}, ErrInvalidAmount
    }
    platform := gross.Mul(c.platformRate).Round(scale)
    provider := gross.Mul(c.providerRate).Round(scale)
    return Breakdown{
        Gross:       gross,
        PlatformFee: platform,
        ProviderFee: provider,
        Net:         gross.Sub(platform).Sub(provider),
    }, nil
}

func (b Breakdown) Balanced() bool {
    return b.PlatformFee.Add(b.ProviderFee).Add(b.Net).Equal(b.Gross)
}
