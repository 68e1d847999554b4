package model

// Event types sent by the client.
const (
	EventJoin             = "join"
	EventPublicKey        = "publicKey"
	EventEncryptedMessage = "encryptedMessage"
)

// Event types sent by the relay.
const (
	EventMatched                 = "matched"
	EventPartnerPublicKey        = "partnerPublicKey"
	EventPartnerEncryptedMessage = "partnerEncryptedMessage"
	EventTimerUpdate             = "timerUpdate"
	EventSessionEnd              = "sessionEnd"
)

// Session end reasons reported by the relay.
const (
	EndReasonTimeout    = "timeout"
	EndReasonDisconnect = "disconnect"
)

type (
	// Envelope is the JSON event frame exchanged over the chat websocket.
	// Key and Data are opaque base64 strings produced by the clients; the
	// relay forwards them without interpreting their contents.
	Envelope struct {
		Type             string `json:"type"`
		Role             string `json:"role,omitempty"`
		SessionID        string `json:"sessionId,omitempty"`
		Key              string `json:"key,omitempty"`
		Data             string `json:"data,omitempty"`
		RemainingSeconds int    `json:"remainingSeconds,omitempty"`
		Reason           string `json:"reason,omitempty"`
	}
)
