package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"
)

// Document is the raw per-order delivery document as received from the source.
type Document struct {
	OrderID               ID                  `json:"order_id"                validate:"required"`
	OrderNumber           Text                `json:"order_number"`
	OrderType             Text                `json:"order_type"`
	OrderStatus           Text                `json:"order_status"`
	CreatedAt             Scalar              `json:"created_at"`
	UpdatedAt             Scalar              `json:"updated_at"`
	ScheduledPickupTime   Scalar              `json:"scheduled_pickup_time"`
	ActualPickupTime      Scalar              `json:"actual_pickup_time"`
	ScheduledDeliveryTime Scalar              `json:"scheduled_delivery_time"`
	ActualDeliveryTime    Scalar              `json:"actual_delivery_time"`
	Customer              Object[CustomerDoc] `json:"customer"`
	Merchant              Object[MerchantDoc] `json:"merchant"`
	Driver                Object[DriverDoc]   `json:"driver"`
	PickupAddress         Object[AddressDoc]  `json:"pickup_address"`
	DropoffAddress        Object[AddressDoc]  `json:"dropoff_address"`
	Items                 []ItemDoc           `json:"items"`
	Payment               Object[PaymentDoc]  `json:"payment"`
	Tracking              Object[TrackingDoc] `json:"tracking"`
	Actions               []ActionDoc         `json:"order_actions"`
	Notes                 Object[NotesDoc]    `json:"notes"`
	Metadata              Object[MetadataDoc] `json:"metadata"`
}

type CustomerDoc struct {
	CustomerID Text   `json:"customer_id"`
	FirstName  Text   `json:"first_name"`
	LastName   Text   `json:"last_name"`
	Phone      Text   `json:"phone"`
	Email      Text   `json:"email"`
	IsVerified Scalar `json:"is_verified"`
}

type MerchantDoc struct {
	MerchantID   Text `json:"merchant_id"`
	BusinessName Text `json:"business_name"`
	ContactName  Text `json:"contact_name"`
	Phone        Text `json:"phone"`
	Email        Text `json:"email"`
	Category     Text `json:"category"`
}

type DriverDoc struct {
	DriverID        Text   `json:"driver_id"`
	FirstName       Text   `json:"first_name"`
	LastName        Text   `json:"last_name"`
	Phone           Text   `json:"phone"`
	VehicleType     Text   `json:"vehicle_type"`
	VehiclePlate    Text   `json:"vehicle_plate"`
	Rating          Number `json:"rating"`
	TotalDeliveries Int    `json:"total_deliveries"`
}

type AddressDoc struct {
	Floor               Text   `json:"floor"`
	Apartment           Text   `json:"apartment"`
	Building            Text   `json:"building"`
	Street              Text   `json:"street"`
	Area                Text   `json:"area"`
	City                Text   `json:"city"`
	District            Text   `json:"district"`
	Governorate         Text   `json:"governorate"`
	PostalCode          Text   `json:"postal_code"`
	Country             Text   `json:"country"`
	CountryCode         Text   `json:"country_code"`
	Latitude            Number `json:"latitude"`
	Longitude           Number `json:"longitude"`
	Landmark            Text   `json:"landmark"`
	SpecialInstructions Text   `json:"special_instructions"`
}

type ItemDoc struct {
	ItemID      Text   `json:"item_id"`
	SKU         Text   `json:"sku"`
	Name        Text   `json:"name"`
	Description Text   `json:"description"`
	Category    Text   `json:"category"`
	Quantity    Int    `json:"quantity"`
	UnitPrice   Number `json:"unit_price"`
	TotalPrice  Number `json:"total_price"`
	WeightKg    Number `json:"weight_kg"`
	LengthCm    Number `json:"length_cm"`
	WidthCm     Number `json:"width_cm"`
	HeightCm    Number `json:"height_cm"`
}

type PaymentDoc struct {
	PaymentID                Text   `json:"payment_id"`
	PaymentMethod            Text   `json:"payment_method"`
	PaymentStatus            Text   `json:"payment_status"`
	Currency                 Text   `json:"currency"`
	Subtotal                 Number `json:"subtotal"`
	DeliveryFee              Number `json:"delivery_fee"`
	ServiceFee               Number `json:"service_fee"`
	DiscountAmount           Number `json:"discount_amount"`
	TotalAmount              Number `json:"total_amount"`
	CollectedAmount          Number `json:"collected_amount"`
	IsPaidBack               Scalar `json:"is_paid_back"`
	CollectedAt              Scalar `json:"collected_at"`
	BusinessCollectionDate   Scalar `json:"business_collection_date"`
	BusinessCollectionStatus Text   `json:"business_collection_status"`
}

type TrackingDoc struct {
	TrackerID             Text   `json:"tracker_id"`
	TrackingURL           Text   `json:"tracking_url"`
	CurrentStatus         Text   `json:"current_status"`
	EstimatedDeliveryTime Scalar `json:"estimated_delivery_time"`
}

type GeoDoc struct {
	Latitude  Number `json:"latitude"`
	Longitude Number `json:"longitude"`
}

type ActionDoc struct {
	ActionID      Text           `json:"action_id"`
	ActionType    Text           `json:"action_type"`
	Status        Text           `json:"status"`
	Timestamp     Scalar         `json:"timestamp"`
	PerformedBy   Text           `json:"performed_by"`
	PerformedByID Text           `json:"performed_by_id"`
	Notes         Text           `json:"notes"`
	GeoLocation   Object[GeoDoc] `json:"geo_location"`
	DriverID      Text           `json:"driver_id"`
	SignatureURL  Text           `json:"signature_url"`
	PhotoURL      Text           `json:"photo_url"`
	ReceivedBy    Text           `json:"received_by"`
}

type NotesDoc struct {
	CustomerNotes Text `json:"customer_notes"`
	MerchantNotes Text `json:"merchant_notes"`
	DriverNotes   Text `json:"driver_notes"`
	InternalNotes Text `json:"internal_notes"`
}

type MetadataDoc struct {
	SourcePlatform   Text   `json:"source_platform"`
	AppVersion       Text   `json:"app_version"`
	DeviceType       Text   `json:"device_type"`
	PromoCode        Text   `json:"promo_code"`
	IsFirstOrder     Scalar `json:"is_first_order"`
	CustomerRating   Number `json:"customer_rating"`
	CustomerFeedback Text   `json:"customer_feedback"`
	DriverRating     Number `json:"driver_rating"`
	RatedAt          Scalar `json:"rated_at"`
}

// Object holds an optional nested object. Null, {} and objects carrying none
// of the known fields are all reported as absent.
type Object[T any] struct {
	Value   T
	Present bool
}

// Some wraps a populated nested object.
func Some[T any](v T) Object[T] {
	return Object[T]{Value: v, Present: !reflect.ValueOf(v).IsZero()}
}

func (o *Object[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, jsonNull) {
		*o = Object[T]{}
		return nil
	}
	if data[0] != '{' {
		if !falsy(data) {
			return fmt.Errorf("expected object, got %s", kindOf(data))
		}
		*o = Object[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// falsy matches the empty literals producers send for a missing sub-document.
func falsy(data []byte) bool {
	switch kindOf(data) {
	case "array":
		return len(bytes.TrimSpace(data[1:len(data)-1])) == 0
	case "boolean":
		return string(data) == "false"
	case "string":
		return string(data) == `""`
	case "number":
		d, err := decimal.NewFromString(string(data))
		return err == nil && d.IsZero()
	default:
		return false
	}
}

// Get returns the object and whether it is present.
func (o Object[T]) Get() (T, bool) {
	return o.Value, o.Present
}

// DocumentError reports a document that cannot be decoded or fails boundary
// validation.
type DocumentError struct {
	Source string
	Err    error
}

func (e *DocumentError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("invalid order document: %v", e.Err)
	}
	return fmt.Sprintf("invalid order document %s: %v", e.Source, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// DecodeDocument parses one raw order document.
func DecodeDocument(source string, data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &DocumentError{Source: source, Err: err}
	}
	return &doc, nil
}
