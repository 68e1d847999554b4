package model

import "time"

type (
	// Message is one transcript entry. Text is always plaintext: either typed
	// locally or already decrypted. The transcript lives in memory for one
	// session and is discarded when the session ends.
	Message struct {
		Text      string    `json:"text"`
		Mine      bool      `json:"mine"`
		System    bool      `json:"system"`
		Timestamp time.Time `json:"timestamp"`
	}
)
