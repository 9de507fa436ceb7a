package models

import "time"

// MaxAttachmentSize is the largest file accepted for an attachment or
// resource upload (5 MiB).
const MaxAttachmentSize = 5 << 20

// Message is an immutable chat entry.
type Message struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	UserID     string `json:"userId"`
	SenderName string `json:"senderName"`

	// Timestamp is assigned by the document store when the message is
	// written; it orders the stream.
	Timestamp time.Time `json:"timestamp"`

	// Attachment is nil for text messages.
	Attachment *Attachment `json:"attachment"`
}

// Attachment references a file uploaded with a message.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}
