package order

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/compozy/orderetl/pkg/logger"
	"github.com/go-playground/validator/v10"
)

// ErrMissingOrderID is the only fatal normalization precondition.
var ErrMissingOrderID = errors.New("order missing required field: order_id")

// Raw is one undecoded document together with the name it was read from.
type Raw struct {
	Source string
	Data   []byte
}

// Normalizer turns order documents into entity graphs. It performs no I/O.
type Normalizer struct {
	validate *validator.Validate
}

func NewNormalizer() *Normalizer {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		var t Text
		switch f := field.Interface().(type) {
		case Text:
			t = f
		case ID:
			t = f.Text
		}
		if !t.Valid {
			return nil
		}
		return strings.TrimSpace(t.Value)
	}, Text{}, ID{})
	return &Normalizer{validate: v}
}

// NormalizeAll decodes and normalizes every document of a batch. It stops at
// the first structural error so nothing is loaded from a partially valid batch.
func (n *Normalizer) NormalizeAll(ctx context.Context, batch []Raw) ([]*Graph, error) {
	log := logger.FromContext(ctx)
	graphs := make([]*Graph, 0, len(batch))
	for _, raw := range batch {
		log.Debug("Normalizing document", "source", raw.Source)
		graph, err := n.NormalizeRaw(ctx, raw)
		if err != nil {
			log.Error("Failed to normalize document", "source", raw.Source, "error", err)
			return nil, err
		}
		graphs = append(graphs, graph)
	}
	log.Info("Normalized order documents", "count", len(graphs))
	return graphs, nil
}

// NormalizeRaw decodes one document and normalizes it.
func (n *Normalizer) NormalizeRaw(ctx context.Context, raw Raw) (*Graph, error) {
	doc, err := DecodeDocument(raw.Source, raw.Data)
	if err != nil {
		return nil, err
	}
	return n.Normalize(ctx, raw.Source, doc)
}

// Normalize builds the entity graph of one decoded document. Timestamps that
// cannot be canonicalized become nil and are reported as warnings.
func (n *Normalizer) Normalize(ctx context.Context, source string, doc *Document) (*Graph, error) {
	if doc == nil {
		return nil, &DocumentError{Source: source, Err: ErrMissingOrderID}
	}
	if err := n.validate.Struct(doc); err != nil {
		return nil, &DocumentError{Source: source, Err: validationCause(err)}
	}
	orderID := doc.OrderID.Value
	c := &coercer{log: logger.FromContext(ctx).With("order_id", orderID, "source", source)}
	c.log.Debug("Transforming order")

	g := &Graph{
		Source:         source,
		Customer:       buildCustomer(doc.Customer),
		Merchant:       buildMerchant(doc.Merchant),
		Driver:         buildDriver(doc.Driver),
		PickupAddress:  buildAddress(doc.PickupAddress),
		DropoffAddress: buildAddress(doc.DropoffAddress),
		Payment:        c.buildPayment(doc.Payment),
		Tracking:       c.buildTracking(doc.Tracking),
		Items:          buildItems(doc.Items, orderID),
		Actions:        c.buildActions(doc.Actions, orderID),
		Notes:          buildNotes(doc.Notes, orderID),
		Metadata:       c.buildMetadata(doc.Metadata, orderID),
	}
	g.Order = Order{
		OrderID:               orderID,
		OrderNumber:           doc.OrderNumber.Ptr(),
		OrderType:             doc.OrderType.Ptr(),
		OrderStatus:           doc.OrderStatus.Ptr(),
		CreatedAt:             c.datetime("created_at", doc.CreatedAt),
		UpdatedAt:             c.datetime("updated_at", doc.UpdatedAt),
		ScheduledPickupTime:   c.datetime("scheduled_pickup_time", doc.ScheduledPickupTime),
		ActualPickupTime:      c.datetime("actual_pickup_time", doc.ActualPickupTime),
		ScheduledDeliveryTime: c.datetime("scheduled_delivery_time", doc.ScheduledDeliveryTime),
		ActualDeliveryTime:    c.datetime("actual_delivery_time", doc.ActualDeliveryTime),
	}
	resolveForeignKeys(g)
	return g, nil
}

// resolveForeignKeys copies identities from the built child records so the
// order row can only reference rows written in the same load.
func resolveForeignKeys(g *Graph) {
	if g.Customer != nil {
		g.Order.CustomerID = g.Customer.CustomerID
	}
	if g.Merchant != nil {
		g.Order.MerchantID = g.Merchant.MerchantID
	}
	if g.Driver != nil {
		g.Order.DriverID = g.Driver.DriverID
	}
	if g.PickupAddress != nil {
		g.Order.PickupAddressID = &g.PickupAddress.AddressID
	}
	if g.DropoffAddress != nil {
		g.Order.DropoffAddressID = &g.DropoffAddress.AddressID
	}
	if g.Payment != nil {
		g.Order.PaymentID = g.Payment.PaymentID
	}
	if g.Tracking != nil {
		g.Order.TrackerID = g.Tracking.TrackerID
	}
}

func validationCause(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.StructField() == "OrderID" {
				return ErrMissingOrderID
			}
		}
	}
	return fmt.Errorf("validate document: %w", err)
}

type coercer struct {
	log logger.Logger
}

func (c *coercer) datetime(field string, v Scalar) *string {
	out, err := canonicalDateTime(v)
	if err != nil {
		c.log.Warn("Failed to parse datetime", "field", field, "value", v.Raw(), "error", err)
		return nil
	}
	return out
}

func buildCustomer(o Object[CustomerDoc]) *Customer {
	d, ok := o.Get()
	if !ok {
		return nil
	}
	return &Customer{
		CustomerID: naturalKey(d.CustomerID),
		FirstName:  d.FirstName.Ptr(),
		LastName:   d.LastName.Ptr(),
		Phone:      d.Phone.Ptr(),
		Email:      d.Email.Ptr(),
		IsVerified: NormalizeBool(d.IsVerified),
	}
}

func buildMerchant(o Object[MerchantDoc]) *Merchant {
	d, ok := o.Get()
	if !ok {
		return nil
	}
	return &Merchant{
		MerchantID:   naturalKey(d.MerchantID),
		BusinessName: d.BusinessName.Ptr(),
		ContactName:  d.ContactName.Ptr(),
		Phone:        d.Phone.Ptr(),
		Email:        d.Email.Ptr(),
		Category:     d.Category.Ptr(),
	}
}

func buildDriver(o Object[DriverDoc]) *Driver {
	d, ok := o.Get()
	if !ok {
		return nil
	}
	return &Driver{
		DriverID:        naturalKey(d.DriverID),
		FirstName:       d.FirstName.Ptr(),
		LastName:        d.LastName.Ptr(),
		Phone:           d.Phone.Ptr(),
		VehicleType:     d.VehicleType.Ptr(),
		VehiclePlate:    d.VehiclePlate.Ptr(),
		Rating:          d.Rating.NullDecimal,
		TotalDeliveries: d.TotalDeliveries.Ptr(),
	}
}

func buildAddress(o Object[AddressDoc]) *Address {
	d, ok := o.Get()
	if !ok {
		return nil
	}
	return &Address{
		AddressID:           AddressID(&d),
		Floor:               d.Floor.Ptr(),
		Apartment:           d.Apartment.Ptr(),
		Building:            d.Building.Ptr(),
		Street:              d.Street.Ptr(),
		Area:                d.Area.Ptr(),
		City:                d.City.Ptr(),
		District:            d.District.Ptr(),
		Governorate:         d.Governorate.Ptr(),
		PostalCode:          d.PostalCode.Ptr(),
		Country:             d.Country.Ptr(),
		CountryCode:         d.CountryCode.Ptr(),
		Latitude:            d.Latitude.NullDecimal,
		Longitude:           d.Longitude.NullDecimal,
		Landmark:            d.Landmark.Ptr(),
		SpecialInstructions: d.SpecialInstructions.Ptr(),
	}
}

func (c *coercer) buildPayment(o Object[PaymentDoc]) *Payment {
	d, ok := o.Get()
	if !ok {
		return nil
	}
	return &Payment{
		PaymentID:                naturalKey(d.PaymentID),
		PaymentMethod:            d.PaymentMethod.Ptr(),
		PaymentStatus:            d.PaymentStatus.Ptr(),
		Currency:                 d.Currency.Ptr(),
		Subtotal:                 d.Subtotal.NullDecimal,
		DeliveryFee:              d.DeliveryFee.NullDecimal,
		ServiceFee:               d.ServiceFee.NullDecimal,
		DiscountAmount:           d.DiscountAmount.NullDecimal,
		TotalAmount:              d.TotalAmount.NullDecimal,
		CollectedAmount:          d.CollectedAmount.NullDecimal,
		IsPaidBack:               NormalizeBool(d.IsPaidBack),
		CollectedAt:              c.datetime("payment.collected_at", d.CollectedAt),
		BusinessCollectionDate:   c.datetime("payment.business_collection_date", d.BusinessCollectionDate),
		BusinessCollectionStatus: d.BusinessCollectionStatus.Ptr(),
	}
}

func (c *coercer) buildTracking(o Object[TrackingDoc]) *Tracking {
	d, ok := o.Get()
	if !ok {
		return nil
	}
	return &Tracking{
		TrackerID:             naturalKey(d.TrackerID),
		TrackingURL:           d.TrackingURL.Ptr(),
		CurrentStatus:         d.CurrentStatus.Ptr(),
		EstimatedDeliveryTime: c.datetime("tracking.estimated_delivery_time", d.EstimatedDeliveryTime),
	}
}

func buildItems(docs []ItemDoc, orderID string) []Item {
	items := make([]Item, 0, len(docs))
	for i := range docs {
		d := &docs[i]
		items = append(items, Item{
			ItemID:      naturalKey(d.ItemID),
			OrderID:     orderID,
			SKU:         d.SKU.Ptr(),
			Name:        d.Name.Ptr(),
			Description: d.Description.Ptr(),
			Category:    d.Category.Ptr(),
			Quantity:    d.Quantity.Ptr(),
			UnitPrice:   d.UnitPrice.NullDecimal,
			TotalPrice:  d.TotalPrice.NullDecimal,
			WeightKg:    d.WeightKg.NullDecimal,
			LengthCm:    d.LengthCm.NullDecimal,
			WidthCm:     d.WidthCm.NullDecimal,
			HeightCm:    d.HeightCm.NullDecimal,
		})
	}
	return items
}

func (c *coercer) buildActions(docs []ActionDoc, orderID string) []Action {
	actions := make([]Action, 0, len(docs))
	for i := range docs {
		d := &docs[i]
		geo := d.GeoLocation.Value
		actions = append(actions, Action{
			ActionID:      naturalKey(d.ActionID),
			OrderID:       orderID,
			ActionType:    d.ActionType.Ptr(),
			Status:        d.Status.Ptr(),
			Timestamp:     c.datetime("order_actions.timestamp", d.Timestamp),
			PerformedBy:   d.PerformedBy.Ptr(),
			PerformedByID: d.PerformedByID.Ptr(),
			Notes:         d.Notes.Ptr(),
			Latitude:      geo.Latitude.NullDecimal,
			Longitude:     geo.Longitude.NullDecimal,
			DriverID:      d.DriverID.Ptr(),
			SignatureURL:  d.SignatureURL.Ptr(),
			PhotoURL:      d.PhotoURL.Ptr(),
			ReceivedBy:    d.ReceivedBy.Ptr(),
		})
	}
	return actions
}

func buildNotes(o Object[NotesDoc], orderID string) *Notes {
	d, ok := o.Get()
	if !ok {
		return nil
	}
	return &Notes{
		OrderID:       orderID,
		CustomerNotes: d.CustomerNotes.Ptr(),
		MerchantNotes: d.MerchantNotes.Ptr(),
		DriverNotes:   d.DriverNotes.Ptr(),
		InternalNotes: d.InternalNotes.Ptr(),
	}
}

func (c *coercer) buildMetadata(o Object[MetadataDoc], orderID string) *Metadata {
	d, ok := o.Get()
	if !ok {
		return nil
	}
	return &Metadata{
		OrderID:          orderID,
		SourcePlatform:   d.SourcePlatform.Ptr(),
		AppVersion:       d.AppVersion.Ptr(),
		DeviceType:       d.DeviceType.Ptr(),
		PromoCode:        d.PromoCode.Ptr(),
		IsFirstOrder:     NormalizeBool(d.IsFirstOrder),
		CustomerRating:   d.CustomerRating.NullDecimal,
		CustomerFeedback: d.CustomerFeedback.Ptr(),
		DriverRating:     d.DriverRating.NullDecimal,
		RatedAt:          c.datetime("metadata.rated_at", d.RatedAt),
	}
}
