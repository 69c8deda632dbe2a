package redisx

import "time"

const (
	// Idempotent checkout: idem:checkout:{external_id} -> order_id
	KeyIdemCheckout = "idem:checkout:%s"

	// Cached order body: order:{order_id}
	KeyOrder = "order:%s"

	// Low-stock alert throttle per product/variation: lowstock:{id}
	KeyLowStock = "lowstock:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLLowStock    = 6 * time.Hour
	TTLDedup       = 48 * time.Hour
)
