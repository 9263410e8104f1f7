package domain

import (
	"encoding/json"
	"time"
)

// IdempotencyStatus tracks the lifecycle of a client-submitted ticket.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
)

// IdempotencyRecord is the durable receipt for a completed operation. One
// record exists per ticket; it is written inside the same database
// transaction as the ledger mutation it belongs to, so the two commit or
// roll back together. Failed attempts never create a record, which is what
// lets them retry under the same ticket.
type IdempotencyRecord struct {
	Key            string            `json:"key"`
	Status         IdempotencyStatus `json:"status"`
	ResponseStatus int               `json:"response_status"`
	ResponseBody   json.RawMessage   `json:"response_body"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
}
