package session

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"bone_chat/internal/cryptographic/encryption"
	"bone_chat/internal/cryptographic/keys"
	"bone_chat/internal/model"
	"bone_chat/internal/transport"
	"bone_chat/internal/utils/log"
)

// State is the chat session lifecycle position. All transitions happen in
// dispatch, driven by relay events, or in Start/Cancel, driven by the user.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateWaiting
	StateKeyExchange
	StateLive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateWaiting:
		return "waiting"
	case StateKeyExchange:
		return "key-exchange"
	case StateLive:
		return "live"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// EndReason says why a session terminated. Timeout and disconnect come from
// the relay; cancelled and error are local.
type EndReason string

const (
	EndTimeout    EndReason = model.EndReasonTimeout
	EndDisconnect EndReason = model.EndReasonDisconnect
	EndCancelled  EndReason = "cancelled"
	EndError      EndReason = "error"
)

var (
	ErrNotLive       = errors.New("session: messages can only be sent in a live session")
	ErrSessionActive = errors.New("session: a session is already in progress")
	ErrInvalidRole   = errors.New("session: invalid role")
)

const secureNotice = "Encrypted connection established. Your conversation is private."

type (
	// Channel is what the controller needs from a relay connection. Satisfied
	// by *transport.Channel; tests substitute an in-memory fake.
	Channel interface {
		Send(model.Envelope) error
		Events() <-chan model.Envelope
		Err() error
		Close() error
	}

	Dialer func(host, token string) (Channel, error)

	// Callbacks let a UI observe the session. All of them are optional and
	// are invoked with no controller lock held, so they may call back in.
	Callbacks struct {
		OnState   func(State)
		OnMessage func(model.Message)
		OnTimer   func(remainingSeconds int)
		OnEnd     func(EndReason)
	}

	Config struct {
		Host      string
		Token     string
		Dial      Dialer             // defaults to the websocket transport
		Provider  *keys.Provider     // defaults to the platform RNG
		Cipher    *encryption.Cipher // defaults to the platform RNG
		Callbacks Callbacks
	}

	// Controller owns the per-session key material, the relay channel and
	// the transcript. Everything is discarded when the session ends.
	Controller struct {
		host  string
		token string
		dial  Dialer
		cb    Callbacks

		provider *keys.Provider
		cipher   *encryption.Cipher

		mu         sync.Mutex
		state      State
		role       model.Role
		ch         Channel
		keyPair    *keys.KeyPair
		peerKey    *rsa.PublicKey
		remaining  int
		transcript []model.Message
	}
)

func NewController(cfg Config) *Controller {
	dial := cfg.Dial
	if dial == nil {
		dial = func(host, token string) (Channel, error) {
			return transport.Dial(host, token)
		}
	}

	provider := cfg.Provider
	if provider == nil {
		provider = keys.NewProvider()
	}
	cipher := cfg.Cipher
	if cipher == nil {
		cipher = encryption.NewCipher()
	}

	return &Controller{
		host:     cfg.Host,
		token:    cfg.Token,
		dial:     dial,
		cb:       cfg.Callbacks,
		provider: provider,
		cipher:   cipher,
	}
}

// Start picks a role and opens a fresh session: dial, join, then wait for the
// relay to pair us. Legal from Idle or after a previous session ended.
func (c *Controller) Start(role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	c.mu.Lock()
	if c.state != StateIdle && c.state != StateEnded {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.state = StateConnecting
	c.role = role
	c.transcript = nil
	c.remaining = 0
	c.mu.Unlock()
	c.notifyState(StateConnecting)

	ch, err := c.dial(c.host, c.token)
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		c.notifyState(StateIdle)
		return fmt.Errorf("dial relay: %w", err)
	}

	if err := ch.Send(model.Envelope{Type: model.EventJoin, Role: string(role)}); err != nil {
		ch.Close()
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		c.notifyState(StateIdle)
		return fmt.Errorf("send join: %w", err)
	}

	c.mu.Lock()
	c.ch = ch
	c.state = StateWaiting
	c.mu.Unlock()
	c.notifyState(StateWaiting)

	go c.run(ch)
	return nil
}

// Cancel ends the session locally: leave the queue or the conversation and
// return to role selection.
func (c *Controller) Cancel() {
	c.end(EndCancelled, nil)
}

// SendMessage encrypts text for the peer and sends it. Only legal in Live;
// on encryption failure nothing is sent and the caller may retry.
func (c *Controller) SendMessage(text string) error {
	c.mu.Lock()
	if c.state != StateLive || c.keyPair == nil || c.peerKey == nil {
		c.mu.Unlock()
		return ErrNotLive
	}
	peer := c.peerKey
	ch := c.ch
	c.mu.Unlock()

	data, err := c.cipher.Encrypt(text, peer)
	if err != nil {
		return err
	}

	if err := ch.Send(model.Envelope{Type: model.EventEncryptedMessage, Data: data}); err != nil {
		c.end(EndError, err)
		return err
	}

	// The transcript only ever holds plaintext, never ciphertext.
	msg := model.Message{Text: text, Mine: true, Timestamp: time.Now()}
	c.mu.Lock()
	c.transcript = append(c.transcript, msg)
	c.mu.Unlock()
	c.notifyMessage(msg)
	return nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Role() model.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// RemainingSeconds is the latest server-sent countdown value. The client
// never computes it locally.
func (c *Controller) RemainingSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// EncryptionReady reports whether both our keypair and the peer's public key
// are present, i.e. outbound messages may be encrypted.
func (c *Controller) EncryptionReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keyPair != nil && c.peerKey != nil
}

// Transcript returns a copy of the session transcript.
func (c *Controller) Transcript() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}

func (c *Controller) run(ch Channel) {
	for env := range ch.Events() {
		c.dispatch(env)
	}

	// The events channel closed. A deliberate Close (session already ended)
	// leaves Err nil; anything else is a connection-level failure.
	if err := ch.Err(); err != nil {
		c.end(EndError, err)
	}
}

// dispatch is the single entry point for relay events into the state machine.
func (c *Controller) dispatch(env model.Envelope) {
	switch env.Type {
	case model.EventMatched:
		c.handleMatched()
	case model.EventPartnerPublicKey:
		c.handlePartnerKey(env.Key)
	case model.EventPartnerEncryptedMessage:
		c.handlePartnerMessage(env.Data)
	case model.EventTimerUpdate:
		c.handleTimer(env.RemainingSeconds)
	case model.EventSessionEnd:
		c.end(EndReason(env.Reason), nil)
	default:
		log.Debug("ignoring unknown relay event", zap.String("type", env.Type))
	}
}

func (c *Controller) handleMatched() {
	c.mu.Lock()
	if c.state != StateWaiting {
		c.mu.Unlock()
		return
	}

	kp, err := c.provider.GenerateKeyPair()
	if err != nil {
		c.mu.Unlock()
		c.end(EndError, err)
		return
	}
	exported, err := keys.ExportPublicKey(kp.Public)
	if err != nil {
		c.mu.Unlock()
		c.end(EndError, err)
		return
	}

	c.keyPair = kp
	c.state = StateKeyExchange
	ch := c.ch
	c.mu.Unlock()

	if err := ch.Send(model.Envelope{Type: model.EventPublicKey, Key: exported}); err != nil {
		c.end(EndError, err)
		return
	}
	c.notifyState(StateKeyExchange)
}

func (c *Controller) handlePartnerKey(key string) {
	c.mu.Lock()
	if c.state != StateKeyExchange {
		c.mu.Unlock()
		return
	}

	pub, err := keys.ImportPublicKey(key)
	if err != nil {
		c.mu.Unlock()
		c.end(EndError, err)
		return
	}

	c.peerKey = pub
	c.state = StateLive
	msg := model.Message{Text: secureNotice, System: true, Timestamp: time.Now()}
	c.transcript = append(c.transcript, msg)
	c.mu.Unlock()

	c.notifyMessage(msg)
	c.notifyState(StateLive)
}

func (c *Controller) handlePartnerMessage(data string) {
	c.mu.Lock()
	if c.state != StateLive {
		c.mu.Unlock()
		return
	}
	kp := c.keyPair
	c.mu.Unlock()

	text, err := c.cipher.Decrypt(data, kp.Private)
	if err != nil {
		// Per-message failure: drop it, the session continues untouched.
		log.Warn("dropping undecryptable message", zap.Error(err))
		return
	}

	msg := model.Message{Text: text, Timestamp: time.Now()}
	c.mu.Lock()
	c.transcript = append(c.transcript, msg)
	c.mu.Unlock()
	c.notifyMessage(msg)
}

func (c *Controller) handleTimer(remaining int) {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateEnded {
		c.mu.Unlock()
		return
	}
	c.remaining = remaining
	c.mu.Unlock()
	c.notifyTimer(remaining)
}

// end tears the session down on every path: server end, local cancel or
// transport error. All key material and the transcript are discarded.
func (c *Controller) end(reason EndReason, err error) {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateEnded {
		c.mu.Unlock()
		return
	}
	ch := c.ch
	c.ch = nil
	c.keyPair = nil
	c.peerKey = nil
	c.transcript = nil
	c.remaining = 0
	c.state = StateEnded
	c.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	if err != nil {
		log.Error("chat session ended", zap.String("reason", string(reason)), zap.Error(err))
	}

	c.notifyState(StateEnded)
	if c.cb.OnEnd != nil {
		c.cb.OnEnd(reason)
	}
}

func (c *Controller) notifyState(s State) {
	if c.cb.OnState != nil {
		c.cb.OnState(s)
	}
}

func (c *Controller) notifyMessage(msg model.Message) {
	if c.cb.OnMessage != nil {
		c.cb.OnMessage(msg)
	}
}

func (c *Controller) notifyTimer(remaining int) {
	if c.cb.OnTimer != nil {
		c.cb.OnTimer(remaining)
	}
}
