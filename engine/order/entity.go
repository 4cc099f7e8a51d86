package order

import "github.com/shopspring/decimal"

// Order is the fact row. Foreign keys are nil when the referenced entity is
// absent from the document.
type Order struct {
	OrderID               string
	OrderNumber           *string
	OrderType             *string
	OrderStatus           *string
	CreatedAt             *string
	UpdatedAt             *string
	ScheduledPickupTime   *string
	ActualPickupTime      *string
	ScheduledDeliveryTime *string
	ActualDeliveryTime    *string
	CustomerID            *string
	MerchantID            *string
	DriverID              *string
	PickupAddressID       *string
	DropoffAddressID      *string
	PaymentID             *string
	TrackerID             *string
}

type Customer struct {
	CustomerID *string
	FirstName  *string
	LastName   *string
	Phone      *string
	Email      *string
	IsVerified *bool
}

type Merchant struct {
	MerchantID   *string
	BusinessName *string
	ContactName  *string
	Phone        *string
	Email        *string
	Category     *string
}

type Driver struct {
	DriverID        *string
	FirstName       *string
	LastName        *string
	Phone           *string
	VehicleType     *string
	VehiclePlate    *string
	Rating          decimal.NullDecimal
	TotalDeliveries *int64
}

// Address is identified by a hash of its location fields; see AddressID.
type Address struct {
	AddressID           string
	Floor               *string
	Apartment           *string
	Building            *string
	Street              *string
	Area                *string
	City                *string
	District            *string
	Governorate         *string
	PostalCode          *string
	Country             *string
	CountryCode         *string
	Latitude            decimal.NullDecimal
	Longitude           decimal.NullDecimal
	Landmark            *string
	SpecialInstructions *string
}

type Payment struct {
	PaymentID                *string
	PaymentMethod            *string
	PaymentStatus            *string
	Currency                 *string
	Subtotal                 decimal.NullDecimal
	DeliveryFee              decimal.NullDecimal
	ServiceFee               decimal.NullDecimal
	DiscountAmount           decimal.NullDecimal
	TotalAmount              decimal.NullDecimal
	CollectedAmount          decimal.NullDecimal
	IsPaidBack               *bool
	CollectedAt              *string
	BusinessCollectionDate   *string
	BusinessCollectionStatus *string
}

type Tracking struct {
	TrackerID             *string
	TrackingURL           *string
	CurrentStatus         *string
	EstimatedDeliveryTime *string
}

type Item struct {
	ItemID      *string
	OrderID     string
	SKU         *string
	Name        *string
	Description *string
	Category    *string
	Quantity    *int64
	UnitPrice   decimal.NullDecimal
	TotalPrice  decimal.NullDecimal
	WeightKg    decimal.NullDecimal
	LengthCm    decimal.NullDecimal
	WidthCm     decimal.NullDecimal
	HeightCm    decimal.NullDecimal
}

// Action is one audit trail entry; geo_location is flattened into
// Latitude and Longitude.
type Action struct {
	ActionID      *string
	OrderID       string
	ActionType    *string
	Status        *string
	Timestamp     *string
	PerformedBy   *string
	PerformedByID *string
	Notes         *string
	Latitude      decimal.NullDecimal
	Longitude     decimal.NullDecimal
	DriverID      *string
	SignatureURL  *string
	PhotoURL      *string
	ReceivedBy    *string
}

type Notes struct {
	OrderID       string
	CustomerNotes *string
	MerchantNotes *string
	DriverNotes   *string
	InternalNotes *string
}

type Metadata struct {
	OrderID          string
	SourcePlatform   *string
	AppVersion       *string
	DeviceType       *string
	PromoCode        *string
	IsFirstOrder     *bool
	CustomerRating   decimal.NullDecimal
	CustomerFeedback *string
	DriverRating     decimal.NullDecimal
	RatedAt          *string
}

// Graph is the normalized form of one order document.
type Graph struct {
	Source         string
	Order          Order
	Customer       *Customer
	Merchant       *Merchant
	Driver         *Driver
	PickupAddress  *Address
	DropoffAddress *Address
	Payment        *Payment
	Tracking       *Tracking
	Items          []Item
	Actions        []Action
	Notes          *Notes
	Metadata       *Metadata
}
