package consumption

// Order is the batch selection policy. The default cost-flow assumption
// is oldest-first (FIFO) so unit economics reflect acquisition order;
// the policy is configurable rather than a hard constant.
type Order string

const (
	// OrderFIFO consumes the oldest-created eligible batch first.
	OrderFIFO Order = "fifo"
	// OrderLIFO consumes the newest-created eligible batch first.
	OrderLIFO Order = "lifo"
)

// IsValid reports whether the order is a known policy.
func (o Order) IsValid() bool {
	return o == OrderFIFO || o == OrderLIFO
}

func (o Order) String() string { return string(o) }

// Config holds consumption engine parameters.
type Config struct {
	// Order is the batch selection policy.
	Order Order

	// MaxRetries bounds optimistic-lock retries before surfacing
	// CONCURRENT_MODIFICATION.
	MaxRetries int

	// MinorUnitDecimals is the currency minor-unit scale used when
	// rounding the weighted-average legacy unit cost.
	MinorUnitDecimals int32
}

// DefaultConfig returns production defaults: FIFO, 5 retries, cents.
func DefaultConfig() Config {
	return Config{
		Order:             OrderFIFO,
		MaxRetries:        5,
		MinorUnitDecimals: 2,
	}
}
