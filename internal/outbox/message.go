package outbox

import "encoding/json"

// Message is one committed event waiting to be relayed to the broker.
type Message struct {
	ID             int64
	EventID        string
	RoutingKey     string
	Payload        json.RawMessage
	CreatedAt      string
	PublishedAt    *string
	RetryCount     int
	NextRetryAt    *string
	LastError      *string
	DeadLetteredAt *string
}

// CanRetry reports whether a message that just failed may be attempted
// again: the failed attempt counts against maxRetries.
func (m *Message) CanRetry(maxRetries int) bool {
	return m.RetryCount+1 < maxRetries
}
