package model

import "time"

// Topic names on the event stream.
const (
	TopicReviewQueue            = "review_queue"
	TopicProcessedNotifications = "processed_notifications"
)

// ReviewMessage asks a human reviewer to resolve a pending document.
type ReviewMessage struct {
	DocID     string    `json:"doc_id"`
	OwnerID   string    `json:"owner_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// ProcessedNotification announces a completed document to downstream readers.
type ProcessedNotification struct {
	DocID     string    `json:"doc_id"`
	OwnerID   string    `json:"owner_id"`
	DocType   string    `json:"doc_type"`
	Timestamp time.Time `json:"timestamp"`
}
