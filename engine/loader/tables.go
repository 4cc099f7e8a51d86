package loader

import "github.com/compozy/orderetl/engine/infra/store"

// Mutable sets decide which stored values a reload may overwrite. Address
// location fields produced the address identity and stay as first written;
// a customer's phone is kept as the contact anchor; an order keeps its
// creation time.
var (
	customerSpec = store.UpsertSpec{
		Table:   "customers",
		Key:     []string{"customer_id"},
		Columns: []string{"customer_id", "first_name", "last_name", "phone", "email", "is_verified"},
		Mutable: []string{"first_name", "last_name", "email", "is_verified"},
	}
	merchantSpec = mergeAll(store.UpsertSpec{
		Table:   "merchants",
		Key:     []string{"merchant_id"},
		Columns: []string{"merchant_id", "business_name", "contact_name", "phone", "email", "category"},
	})
	driverSpec = mergeAll(store.UpsertSpec{
		Table: "drivers",
		Key:   []string{"driver_id"},
		Columns: []string{
			"driver_id", "first_name", "last_name", "phone",
			"vehicle_type", "vehicle_plate", "rating", "total_deliveries",
		},
	})
	addressSpec = store.UpsertSpec{
		Table: "addresses",
		Key:   []string{"address_id"},
		Columns: []string{
			"address_id", "floor", "apartment", "building", "street", "area", "city",
			"district", "governorate", "postal_code", "country", "country_code",
			"latitude", "longitude", "landmark", "special_instructions",
		},
		Mutable: []string{"floor", "apartment", "building", "landmark", "special_instructions"},
	}
	paymentSpec = mergeAll(store.UpsertSpec{
		Table: "payments",
		Key:   []string{"payment_id"},
		Columns: []string{
			"payment_id", "payment_method", "payment_status", "currency",
			"subtotal", "delivery_fee", "service_fee", "discount_amount",
			"total_amount", "collected_amount", "is_paid_back", "collected_at",
			"business_collection_date", "business_collection_status",
		},
	})
	trackingSpec = mergeAll(store.UpsertSpec{
		Table:   "tracking",
		Key:     []string{"tracker_id"},
		Columns: []string{"tracker_id", "tracking_url", "current_status", "estimated_delivery_time"},
	})
	orderSpec = mergeAll(store.UpsertSpec{
		Table: "orders",
		Key:   []string{"order_id"},
		Columns: []string{
			"order_id", "order_number", "order_type", "order_status",
			"created_at", "updated_at",
			"scheduled_pickup_time", "actual_pickup_time",
			"scheduled_delivery_time", "actual_delivery_time",
			"customer_id", "merchant_id", "driver_id",
			"pickup_address_id", "dropoff_address_id", "payment_id", "tracker_id",
		},
	}, "created_at")
	itemSpec = mergeAll(store.UpsertSpec{
		Table: "items",
		Key:   []string{"item_id"},
		Columns: []string{
			"item_id", "order_id", "sku", "name", "description", "category", "quantity",
			"unit_price", "total_price", "weight_kg", "length_cm", "width_cm", "height_cm",
		},
	})
	actionSpec = mergeAll(store.UpsertSpec{
		Table: "order_actions",
		Key:   []string{"action_id"},
		Columns: []string{
			"action_id", "order_id", "action_type", "status", "timestamp",
			"performed_by", "performed_by_id", "notes", "latitude", "longitude",
			"driver_id", "signature_url", "photo_url", "received_by",
		},
	})
	notesSpec = mergeAll(store.UpsertSpec{
		Table:   "order_notes",
		Key:     []string{"order_id"},
		Columns: []string{"order_id", "customer_notes", "merchant_notes", "driver_notes", "internal_notes"},
	})
	metadataSpec = mergeAll(store.UpsertSpec{
		Table: "order_metadata",
		Key:   []string{"order_id"},
		Columns: []string{
			"order_id", "source_platform", "app_version", "device_type", "promo_code",
			"is_first_order", "customer_rating", "customer_feedback", "driver_rating", "rated_at",
		},
	})
)

func mergeAll(s store.UpsertSpec, excluded ...string) store.UpsertSpec {
	s.Mutable = s.AllBut(excluded...)
	return s
}

// Specs lists every table in write order.
func Specs() []store.UpsertSpec {
	return []store.UpsertSpec{
		customerSpec, merchantSpec, driverSpec, addressSpec,
		paymentSpec, trackingSpec,
		orderSpec,
		itemSpec, actionSpec, notesSpec, metadataSpec,
	}
}
