package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartState_Aggregates(t *testing.T) {
	cart := CartState{
		Lines: []CartLine{
			{ProductID: 1, UnitPrice: MustMoney("25.00"), Quantity: 2},
			{ProductID: 2, UnitPrice: MustMoney("10.00"), Quantity: 3},
		},
	}

	subtotal, err := cart.Subtotal()
	require.NoError(t, err)
	assert.Equal(t, MustMoney("80.00"), subtotal)
	assert.Equal(t, 5, cart.ItemCount())
	assert.Equal(t, 1, cart.Find(2))
	assert.Equal(t, -1, cart.Find(3))
}

func TestCartState_EmptyAggregates(t *testing.T) {
	var cart CartState

	subtotal, err := cart.Subtotal()
	require.NoError(t, err)
	assert.Equal(t, Money(0), subtotal)
	assert.Equal(t, 0, cart.ItemCount())
	assert.True(t, cart.IsEmpty())
}

func TestCartState_SubtotalOverflow(t *testing.T) {
	cart := CartState{
		Lines: []CartLine{
			{ProductID: 1, UnitPrice: Money(math.MaxInt64 / 2), Quantity: 3},
		},
	}

	_, err := cart.Subtotal()
	require.Error(t, err)
	assert.True(t, IsArithmetic(err))
}

func TestCartState_JSONRoundTrip(t *testing.T) {
	added := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cart := CartState{
		SessionID: "s-1",
		Version:   4,
		UpdatedAt: added,
		Lines: []CartLine{
			{
				ProductID: 7,
				UnitPrice: MustMoney("19.99"),
				Quantity:  2,
				AddedAt:   added,
				Display: Display{
					Title:      "Essence Mascara",
					Thumbnail:  "https://cdn.example/7.png",
					Rating:     4.5,
					Attributes: map[string]json.RawMessage{"brand": json.RawMessage(`"Essence"`)},
				},
			},
			{ProductID: 3, UnitPrice: MustMoney("0.01"), Quantity: 1, AddedAt: added},
		},
	}

	data, err := json.Marshal(cart)
	require.NoError(t, err)

	var decoded CartState
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, cart, decoded)
}

func TestCartState_Validate(t *testing.T) {
	valid := CartState{Lines: []CartLine{{ProductID: 1, UnitPrice: 100, Quantity: 1}}}
	assert.NoError(t, valid.Validate())

	cases := map[string]CartState{
		"duplicate": {Lines: []CartLine{
			{ProductID: 1, UnitPrice: 100, Quantity: 1},
			{ProductID: 1, UnitPrice: 100, Quantity: 2},
		}},
		"zero quantity":  {Lines: []CartLine{{ProductID: 1, UnitPrice: 100, Quantity: 0}}},
		"negative price": {Lines: []CartLine{{ProductID: 1, UnitPrice: -1, Quantity: 1}}},
		"missing id":     {Lines: []CartLine{{ProductID: 0, UnitPrice: 1, Quantity: 1}}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestCartState_CloneDoesNotShareLines(t *testing.T) {
	cart := CartState{Lines: []CartLine{{ProductID: 1, UnitPrice: 100, Quantity: 1}}}

	clone := cart.Clone()
	clone.Lines[0].Quantity = 9

	assert.Equal(t, 1, cart.Lines[0].Quantity)
}

func TestCartState_Deduct(t *testing.T) {
	c := CartState{Lines: []CartLine{
		{ProductID: 1, UnitPrice: 2500, Quantity: 3},
		{ProductID: 2, UnitPrice: 1000, Quantity: 1},
	}}

	changed := c.Deduct([]CartLine{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 5}, {ProductID: 9, Quantity: 1}})
	require.True(t, changed)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, c.Lines[0].Quantity)

	assert.False(t, c.Deduct([]CartLine{{ProductID: 9, Quantity: 1}, {ProductID: 1, Quantity: 0}}))

	assert.True(t, c.Deduct([]CartLine{{ProductID: 1, Quantity: 2}}))
	assert.True(t, c.IsEmpty())
	assert.Nil(t, c.Lines)
}
