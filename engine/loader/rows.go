package loader

import (
	"github.com/compozy/orderetl/engine/infra/store"
	"github.com/compozy/orderetl/engine/order"
	"github.com/shopspring/decimal"
)

// num passes decimals as canonical text so neither driver rounds through
// float64.
func num(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func customerRow(c *order.Customer) store.Row {
	return store.Row{c.CustomerID, c.FirstName, c.LastName, c.Phone, c.Email, c.IsVerified}
}

func merchantRow(m *order.Merchant) store.Row {
	return store.Row{m.MerchantID, m.BusinessName, m.ContactName, m.Phone, m.Email, m.Category}
}

func driverRow(d *order.Driver) store.Row {
	return store.Row{
		d.DriverID, d.FirstName, d.LastName, d.Phone,
		d.VehicleType, d.VehiclePlate, num(d.Rating), d.TotalDeliveries,
	}
}

func addressRow(a *order.Address) store.Row {
	return store.Row{
		a.AddressID, a.Floor, a.Apartment, a.Building, a.Street, a.Area, a.City,
		a.District, a.Governorate, a.PostalCode, a.Country, a.CountryCode,
		num(a.Latitude), num(a.Longitude), a.Landmark, a.SpecialInstructions,
	}
}

func paymentRow(p *order.Payment) store.Row {
	return store.Row{
		p.PaymentID, p.PaymentMethod, p.PaymentStatus, p.Currency,
		num(p.Subtotal), num(p.DeliveryFee), num(p.ServiceFee), num(p.DiscountAmount),
		num(p.TotalAmount), num(p.CollectedAmount), p.IsPaidBack, p.CollectedAt,
		p.BusinessCollectionDate, p.BusinessCollectionStatus,
	}
}

func trackingRow(t *order.Tracking) store.Row {
	return store.Row{t.TrackerID, t.TrackingURL, t.CurrentStatus, t.EstimatedDeliveryTime}
}

func orderRow(o *order.Order) store.Row {
	return store.Row{
		o.OrderID, o.OrderNumber, o.OrderType, o.OrderStatus,
		o.CreatedAt, o.UpdatedAt,
		o.ScheduledPickupTime, o.ActualPickupTime,
		o.ScheduledDeliveryTime, o.ActualDeliveryTime,
		o.CustomerID, o.MerchantID, o.DriverID,
		o.PickupAddressID, o.DropoffAddressID, o.PaymentID, o.TrackerID,
	}
}

func itemRows(items []order.Item) []store.Row {
	rows := make([]store.Row, 0, len(items))
	for i := range items {
		it := &items[i]
		rows = append(rows, store.Row{
			it.ItemID, it.OrderID, it.SKU, it.Name, it.Description, it.Category, it.Quantity,
			num(it.UnitPrice), num(it.TotalPrice), num(it.WeightKg),
			num(it.LengthCm), num(it.WidthCm), num(it.HeightCm),
		})
	}
	return rows
}

func actionRows(actions []order.Action) []store.Row {
	rows := make([]store.Row, 0, len(actions))
	for i := range actions {
		a := &actions[i]
		rows = append(rows, store.Row{
			a.ActionID, a.OrderID, a.ActionType, a.Status, a.Timestamp,
			a.PerformedBy, a.PerformedByID, a.Notes, num(a.Latitude), num(a.Longitude),
			a.DriverID, a.SignatureURL, a.PhotoURL, a.ReceivedBy,
		})
	}
	return rows
}

func notesRow(n *order.Notes) store.Row {
	return store.Row{n.OrderID, n.CustomerNotes, n.MerchantNotes, n.DriverNotes, n.InternalNotes}
}

func metadataRow(m *order.Metadata) store.Row {
	return store.Row{
		m.OrderID, m.SourcePlatform, m.AppVersion, m.DeviceType, m.PromoCode,
		m.IsFirstOrder, num(m.CustomerRating), m.CustomerFeedback, num(m.DriverRating), m.RatedAt,
	}
}
