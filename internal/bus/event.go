package bus

import "time"

// Event records one change to a document-store key.
type Event struct {
	Key       string
	Timestamp time.Time
	Value     any
}
