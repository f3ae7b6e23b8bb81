package domain

// OrderStatus is the storefront status of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusFailed     OrderStatus = "failed"
)

// IsValid checks if the order status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusOnHold,
		OrderStatusCompleted,
		OrderStatusCancelled,
		OrderStatusRefunded,
		OrderStatusFailed:
		return true
	default:
		return false
	}
}

// IsPaid reports whether payment for the order has been received.
func (s OrderStatus) IsPaid() bool {
	return s == OrderStatusProcessing || s == OrderStatusCompleted
}

// ProductType distinguishes printed books from everything else the store sells.
type ProductType string

const (
	ProductTypePrintBook ProductType = "print_book"
	ProductTypeSimple    ProductType = "simple"
)

// AutoCompleteMode controls whether shipped orders are completed automatically.
type AutoCompleteMode string

const (
	AutoCompleteNever     AutoCompleteMode = "never"
	AutoCompleteOnShipped AutoCompleteMode = "on_shipped"
)

// ParseAutoCompleteMode falls back to AutoCompleteNever for unrecognized values.
func ParseAutoCompleteMode(s string) AutoCompleteMode {
	switch AutoCompleteMode(s) {
	case AutoCompleteOnShipped, "lulu_shipped":
		return AutoCompleteOnShipped
	default:
		return AutoCompleteNever
	}
}
