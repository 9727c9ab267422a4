package redisx

import "time"

const (
	// Checkout replay: idem:checkout:{order_id}:{idempotency_key} -> {ownerId, response}
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Order status cache: order_status:{order_id} -> {"status": "...", "total": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup of consumed events: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
