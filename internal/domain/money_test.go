package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyFromDecimal_RoundsToCents(t *testing.T) {
	m, err := MoneyFromDecimal(decimal.RequireFromString("6.405"))
	require.NoError(t, err)
	assert.Equal(t, Money(641), m)

	m, err = MoneyFromDecimal(decimal.RequireFromString("6.404"))
	require.NoError(t, err)
	assert.Equal(t, Money(640), m)
}

func TestMoney_NoFloatDrift(t *testing.T) {
	// 0.1 + 0.2 in float64 is 0.30000000000000004
	a := MustMoney("0.10")
	b := MustMoney("0.20")
	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "0.30", sum.String())
}

func TestMoney_Overflow(t *testing.T) {
	_, err := Money(math.MaxInt64).Add(1)
	assert.True(t, IsArithmetic(err))

	_, err = Money(math.MaxInt64 / 2).Mul(3)
	assert.True(t, IsArithmetic(err))

	_, err = MoneyFromDecimal(decimal.RequireFromString("1e30"))
	assert.True(t, IsArithmetic(err))
}

func TestMoney_JSON(t *testing.T) {
	data, err := json.Marshal(MustMoney("80"))
	require.NoError(t, err)
	assert.Equal(t, "80.00", string(data))

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`"12.34"`), &m))
	assert.Equal(t, Money(1234), m)

	require.NoError(t, json.Unmarshal([]byte(`5.5`), &m))
	assert.Equal(t, Money(550), m)
}
