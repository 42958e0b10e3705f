// Package outbox holds the row lifecycle shared by every transactional
// outbox table. Adapters persist rows as pending inside the same transaction
// as the state change; the relay worker flips them to published.
package outbox

const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusFailed    = "failed"
)
