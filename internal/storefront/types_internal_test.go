package storefront

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderDecoding(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		product  string
		expanded bool
		customer *OrderCustomer
	}{
		{
			name:    "references",
			body:    `{"_id":"o-1","userId":"user-1","items":[{"productId":"p-1","quantity":2}]}`,
			product: "p-1",
			customer: &OrderCustomer{
				ID: "user-1",
			},
		},
		{
			name:     "expanded",
			body:     `{"_id":"o-1","userId":{"_id":"user-1","name":"Alice","email":"alice@example.com"},"items":[{"_id":"i-1","productId":{"_id":"p-1","name":"Teapot","price":20,"images":[]},"quantity":2}]}`,
			product:  "p-1",
			expanded: true,
			customer: &OrderCustomer{ID: "user-1", Name: "Alice", Email: "alice@example.com"},
		},
		{
			name:    "no customer",
			body:    `{"_id":"o-1","items":[{"productId":"p-1","quantity":2}]}`,
			product: "p-1",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var o Order
			require.NoError(t, json.Unmarshal([]byte(tc.body), &o))

			assert.Equal(t, "o-1", o.ID)
			assert.Equal(t, tc.customer, o.Customer)
			require.Len(t, o.Items, 1)
			assert.Equal(t, tc.product, o.Items[0].ProductID)
			assert.Equal(t, 2, o.Items[0].Quantity)
			if tc.expanded {
				require.NotNil(t, o.Items[0].Product)
				assert.Equal(t, "Teapot", o.Items[0].Product.Name)
			} else {
				assert.Nil(t, o.Items[0].Product)
			}
		})
	}
}

func TestOrderDecoding_RejectsMalformedItems(t *testing.T) {
	var o Order
	err := json.Unmarshal([]byte(`{"_id":"o-1","items":[{"productId":42,"quantity":1}]}`), &o)
	assert.Error(t, err)
}

func TestCartClone(t *testing.T) {
	original := Cart{Items: []CartItem{{ProductID: "p-1", Quantity: 1}}}

	clone := original.clone()
	clone.Items[0].Quantity = 5

	assert.Equal(t, 1, original.Items[0].Quantity)
	assert.Equal(t, []CartItem{}, Cart{}.clone().Items)
}

func TestCartTotal(t *testing.T) {
	cart := Cart{Items: []CartItem{
		{ProductID: "p-1", Quantity: 1},
		{ProductID: "p-2", Quantity: 4},
		{ProductID: "unknown", Quantity: 9},
	}}

	assert.InDelta(t, 40, cart.Total(map[string]float64{"p-1": 20, "p-2": 5}), 0.001)
}

func TestPageDefaults(t *testing.T) {
	assert.Equal(t, PageParams{Page: 1, Limit: 20}, PageParams{}.withDefaults(20))
	assert.Equal(t, PageParams{Page: 3, Limit: 5}, PageParams{Page: 3, Limit: 5}.withDefaults(20))
}
