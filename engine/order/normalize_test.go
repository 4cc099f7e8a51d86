package order

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/compozy/orderetl/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) Raw {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return Raw{Source: name, Data: data}
}

func captureLogs(t *testing.T) (context.Context, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log := logger.NewLogger(&logger.Config{Level: logger.DebugLevel, Output: &buf, JSON: true})
	return logger.ContextWithLogger(t.Context(), log), &buf
}

func TestNormalizer_Normalize(t *testing.T) {
	t.Run("Should flatten a complete document", func(t *testing.T) {
		g, err := NewNormalizer().NormalizeRaw(t.Context(), loadFixture(t, "full_order.json"))
		require.NoError(t, err)

		assert.Equal(t, "full_order.json", g.Source)
		o := g.Order
		assert.Equal(t, "ORD-12345", o.OrderID)
		assert.Equal(t, "12345", *o.OrderNumber)
		assert.Equal(t, "2020-08-17 14:53:28", *o.CreatedAt)
		assert.Equal(t, "2020-08-17 16:20:00", *o.UpdatedAt)
		assert.Equal(t, "2020-08-17 15:00:00", *o.ScheduledPickupTime)
		assert.Nil(t, o.ActualPickupTime)
		assert.Nil(t, o.ScheduledDeliveryTime)
		assert.Equal(t, "2020-08-17 16:15:42", *o.ActualDeliveryTime)

		require.NotNil(t, g.Customer)
		assert.True(t, *g.Customer.IsVerified)
		assert.Equal(t, "+201234567890", *g.Customer.Phone)

		require.NotNil(t, g.Driver)
		assert.True(t, g.Driver.Rating.Decimal.Equal(decimal.RequireFromString("4.85")))
		assert.Equal(t, int64(1520), *g.Driver.TotalDeliveries)

		require.NotNil(t, g.PickupAddress)
		assert.Equal(t, "c4044f1610ef0557290cb4c4be372bc5", g.PickupAddress.AddressID)
		require.NotNil(t, g.DropoffAddress)
		assert.Equal(t, "39417dc8a639a4ca0b2ec1fcd7a05645", g.DropoffAddress.AddressID)
		assert.Equal(t, "3", *g.DropoffAddress.Floor)

		require.Len(t, g.Items, 2)
		assert.Equal(t, "ORD-12345", g.Items[0].OrderID)
		assert.Equal(t, int64(3), *g.Items[1].Quantity)
		assert.True(t, g.Items[1].UnitPrice.Decimal.Equal(decimal.RequireFromString("12.5")))

		require.NotNil(t, g.Payment)
		assert.False(t, *g.Payment.IsPaidBack)
		assert.Equal(t, "2020-08-17 16:16:00", *g.Payment.CollectedAt)
		assert.Equal(t, "2020-08-18 00:00:00", *g.Payment.BusinessCollectionDate)

		require.NotNil(t, g.Tracking)
		assert.Equal(t, "2020-08-17 16:30:00", *g.Tracking.EstimatedDeliveryTime)

		require.Len(t, g.Actions, 2)
		assert.Equal(t, "ORD-12345", g.Actions[0].OrderID)
		assert.True(t, g.Actions[0].Latitude.Decimal.Equal(decimal.RequireFromString("30.0444")))
		assert.False(t, g.Actions[1].Latitude.Valid)
		assert.Equal(t, "John", *g.Actions[1].ReceivedBy)

		require.NotNil(t, g.Notes)
		assert.Equal(t, "ORD-12345", g.Notes.OrderID)
		require.NotNil(t, g.Metadata)
		assert.True(t, *g.Metadata.IsFirstOrder)
		assert.Equal(t, "2020-08-17 18:00:00", *g.Metadata.RatedAt)
	})

	t.Run("Should resolve foreign keys from the built records", func(t *testing.T) {
		g, err := NewNormalizer().NormalizeRaw(t.Context(), loadFixture(t, "full_order.json"))
		require.NoError(t, err)

		assert.Equal(t, g.Customer.CustomerID, g.Order.CustomerID)
		assert.Equal(t, g.Merchant.MerchantID, g.Order.MerchantID)
		assert.Equal(t, g.Driver.DriverID, g.Order.DriverID)
		assert.Equal(t, g.PickupAddress.AddressID, *g.Order.PickupAddressID)
		assert.Equal(t, g.DropoffAddress.AddressID, *g.Order.DropoffAddressID)
		assert.Equal(t, "PAY-77", *g.Order.PaymentID)
		assert.Equal(t, "TRK-5", *g.Order.TrackerID)
	})

	t.Run("Should leave foreign keys nil for absent objects", func(t *testing.T) {
		raw := Raw{
			Source: "min.json",
			Data:   []byte(`{"order_id":"ORD-1","customer":{},"payment":null,"merchant":[],"driver":false}`),
		}

		g, err := NewNormalizer().NormalizeRaw(t.Context(), raw)
		require.NoError(t, err)

		assert.Nil(t, g.Customer)
		assert.Nil(t, g.Payment)
		assert.Nil(t, g.Merchant)
		assert.Nil(t, g.Driver)
		assert.Nil(t, g.Order.CustomerID)
		assert.Nil(t, g.Order.MerchantID)
		assert.Nil(t, g.Order.DriverID)
		assert.Nil(t, g.Order.PickupAddressID)
		assert.Nil(t, g.Order.DropoffAddressID)
		assert.Nil(t, g.Order.PaymentID)
		assert.Nil(t, g.Order.TrackerID)
		assert.Empty(t, g.Items)
		assert.NotNil(t, g.Items)
		assert.Empty(t, g.Actions)
	})

	t.Run("Should keep a blank natural key out of the order", func(t *testing.T) {
		raw := Raw{Data: []byte(`{"order_id":"ORD-1","merchant":{"merchant_id":"  ","business_name":"X"}}`)}

		g, err := NewNormalizer().NormalizeRaw(t.Context(), raw)
		require.NoError(t, err)

		require.NotNil(t, g.Merchant)
		assert.Nil(t, g.Merchant.MerchantID)
		assert.Nil(t, g.Order.MerchantID)
	})

	t.Run("Should fail without an order id", func(t *testing.T) {
		for _, body := range []string{
			`{}`, `{"order_id":null}`, `{"order_id":""}`, `{"order_id":"   "}`, `null`,
			`{"order_id":false}`, `{"order_id":true}`, `{"order_id":0}`,
		} {
			g, err := NewNormalizer().NormalizeRaw(t.Context(), Raw{Source: "bad.json", Data: []byte(body)})

			assert.ErrorIs(t, err, ErrMissingOrderID, body)
			assert.Nil(t, g)
			var docErr *DocumentError
			require.ErrorAs(t, err, &docErr)
			assert.Equal(t, "bad.json", docErr.Source)
		}
	})

	t.Run("Should null malformed timestamps with a warning", func(t *testing.T) {
		ctx, logs := captureLogs(t)
		raw := Raw{Source: "o2.json", Data: []byte(`{"order_id":"ORD-2","actual_delivery_time":"not-a-date","created_at":1597675808}`)}

		g, err := NewNormalizer().NormalizeRaw(ctx, raw)
		require.NoError(t, err)

		assert.Nil(t, g.Order.ActualDeliveryTime)
		assert.Nil(t, g.Order.CreatedAt)
		out := logs.String()
		assert.Contains(t, out, "Failed to parse datetime")
		assert.Contains(t, out, `"field":"actual_delivery_time"`)
		assert.Contains(t, out, `"field":"created_at"`)
		assert.Contains(t, out, `"order_id":"ORD-2"`)
	})
}

func TestNormalizer_NormalizeAll(t *testing.T) {
	t.Run("Should keep batch order", func(t *testing.T) {
		batch := []Raw{
			{Source: "a.json", Data: []byte(`{"order_id":"A"}`)},
			{Source: "b.json", Data: []byte(`{"order_id":"B"}`)},
		}

		graphs, err := NewNormalizer().NormalizeAll(t.Context(), batch)
		require.NoError(t, err)

		require.Len(t, graphs, 2)
		assert.Equal(t, "A", graphs[0].Order.OrderID)
		assert.Equal(t, "b.json", graphs[1].Source)
	})

	t.Run("Should stop at the first structural error", func(t *testing.T) {
		batch := []Raw{
			{Source: "a.json", Data: []byte(`{"order_id":"A"}`)},
			{Source: "b.json", Data: []byte(`{"order_number":"2"}`)},
			{Source: "c.json", Data: []byte(`{"order_id":"C"}`)},
		}

		graphs, err := NewNormalizer().NormalizeAll(t.Context(), batch)

		assert.Nil(t, graphs)
		assert.ErrorIs(t, err, ErrMissingOrderID)
		assert.Contains(t, err.Error(), "b.json")
	})
}
