package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bone_chat/internal/model"
	"bone_chat/internal/utils/log"
)

type (
	// Client is one connected chat participant. Satisfied by wsClient; tests
	// substitute an in-memory recorder.
	Client interface {
		UserID() string
		Send(env model.Envelope) error
	}

	// SessionRegistry records active session metadata (ids and roles only,
	// never message content). *redis.RedisService satisfies it.
	SessionRegistry interface {
		Set(ctx context.Context, key string, value any, ttl time.Duration) error
		Del(ctx context.Context, key string) error
	}

	chatSession struct {
		id           string
		caretakerID  string
		helpseekerID string
		done         chan struct{}
	}

	// Hub pairs waiting clients of complementary roles and relays their
	// opaque key/ciphertext payloads. It never decrypts anything.
	Hub struct {
		registry SessionRegistry
		duration time.Duration
		tick     time.Duration

		mu           sync.Mutex
		clients      map[string]Client
		caretakers   []string
		helpseekers  []string
		sessions     map[string]*chatSession
		userSessions map[string]string
	}
)

func NewHub(registry SessionRegistry, duration, tick time.Duration) *Hub {
	return &Hub{
		registry:     registry,
		duration:     duration,
		tick:         tick,
		clients:      make(map[string]Client),
		sessions:     make(map[string]*chatSession),
		userSessions: make(map[string]string),
	}
}

// Register adds a connected client. A user may hold only one connection.
func (h *Hub) Register(c Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.UserID()]; ok {
		return fmt.Errorf("user %s is already connected", c.UserID())
	}
	h.clients[c.UserID()] = c
	return nil
}

// Unregister drops the connection, removes the user from the wait queues and
// ends any session they were part of.
func (h *Hub) Unregister(userID string) {
	h.mu.Lock()
	delete(h.clients, userID)
	h.caretakers = remove(h.caretakers, userID)
	h.helpseekers = remove(h.helpseekers, userID)
	sessionID, inSession := h.userSessions[userID]
	h.mu.Unlock()

	if inSession {
		h.EndSession(sessionID, model.EndReasonDisconnect)
	}
}

// HandleEnvelope is the single entry point for client events.
func (h *Hub) HandleEnvelope(userID string, env model.Envelope) {
	switch env.Type {
	case model.EventJoin:
		h.join(userID, model.Role(env.Role))
	case model.EventPublicKey:
		h.forward(userID, model.Envelope{Type: model.EventPartnerPublicKey, Key: env.Key})
	case model.EventEncryptedMessage:
		h.forward(userID, model.Envelope{Type: model.EventPartnerEncryptedMessage, Data: env.Data})
	default:
		log.Debug("ignoring unknown client event", zap.String("type", env.Type))
	}
}

func (h *Hub) join(userID string, role model.Role) {
	if !role.Valid() {
		log.Warn("join with invalid role dropped", zap.String("role", string(role)))
		return
	}

	h.mu.Lock()
	if _, ok := h.userSessions[userID]; ok || contains(h.caretakers, userID) || contains(h.helpseekers, userID) {
		h.mu.Unlock()
		return
	}

	if role == model.RoleCaretaker {
		h.caretakers = append(h.caretakers, userID)
	} else {
		h.helpseekers = append(h.helpseekers, userID)
	}
	h.mu.Unlock()

	h.tryMatch()
}

// tryMatch pops one waiting caretaker and one waiting helpseeker and starts
// a session for them.
func (h *Hub) tryMatch() {
	for {
		h.mu.Lock()
		if len(h.caretakers) == 0 || len(h.helpseekers) == 0 {
			h.mu.Unlock()
			return
		}

		caretakerID := h.caretakers[0]
		helpseekerID := h.helpseekers[0]
		h.caretakers = h.caretakers[1:]
		h.helpseekers = h.helpseekers[1:]

		caretaker, okC := h.clients[caretakerID]
		helpseeker, okH := h.clients[helpseekerID]
		if !okC || !okH {
			// A queued user dropped before being paired; requeue the other.
			if okC {
				h.caretakers = append([]string{caretakerID}, h.caretakers...)
			}
			if okH {
				h.helpseekers = append([]string{helpseekerID}, h.helpseekers...)
			}
			h.mu.Unlock()
			continue
		}

		s := &chatSession{
			id:           uuid.New().String(),
			caretakerID:  caretakerID,
			helpseekerID: helpseekerID,
			done:         make(chan struct{}),
		}
		h.sessions[s.id] = s
		h.userSessions[caretakerID] = s.id
		h.userSessions[helpseekerID] = s.id
		h.mu.Unlock()

		h.recordSession(s)

		caretaker.Send(model.Envelope{Type: model.EventMatched, Role: string(model.RoleCaretaker), SessionID: s.id})
		helpseeker.Send(model.Envelope{Type: model.EventMatched, Role: string(model.RoleHelpSeeker), SessionID: s.id})

		log.Info("session matched",
			zap.String("session_id", s.id),
			zap.String("caretaker", caretakerID),
			zap.String("helpseeker", helpseekerID))

		go h.sessionTimer(s)
	}
}

// forward relays an opaque payload to the sender's partner.
func (h *Hub) forward(userID string, env model.Envelope) {
	h.mu.Lock()
	sessionID, ok := h.userSessions[userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	s := h.sessions[sessionID]
	partnerID := s.caretakerID
	if userID == s.caretakerID {
		partnerID = s.helpseekerID
	}
	partner, ok := h.clients[partnerID]
	h.mu.Unlock()

	if !ok {
		return
	}
	if err := partner.Send(env); err != nil {
		log.Debug("forward to partner failed", zap.Error(err))
	}
}

// EndSession notifies both participants and discards the session.
func (h *Hub) EndSession(sessionID, reason string) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sessionID)
	delete(h.userSessions, s.caretakerID)
	delete(h.userSessions, s.helpseekerID)
	close(s.done)

	caretaker := h.clients[s.caretakerID]
	helpseeker := h.clients[s.helpseekerID]
	h.mu.Unlock()

	if h.registry != nil {
		if err := h.registry.Del(context.Background(), sessionKey(s.id)); err != nil {
			log.Debug("session registry delete failed", zap.Error(err))
		}
	}

	end := model.Envelope{Type: model.EventSessionEnd, Reason: reason}
	if caretaker != nil {
		caretaker.Send(end)
	}
	if helpseeker != nil {
		helpseeker.Send(end)
	}

	log.Info("session ended", zap.String("session_id", sessionID), zap.String("reason", reason))
}

// sessionTimer drives the server-authoritative countdown. Clients only ever
// render the values it sends.
func (h *Hub) sessionTimer(s *chatSession) {
	deadline := time.Now().Add(h.duration)

	h.broadcast(s, model.Envelope{
		Type:             model.EventTimerUpdate,
		RemainingSeconds: int(h.duration.Seconds()),
	})

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			remaining := int(time.Until(deadline).Round(time.Second).Seconds())
			if remaining <= 0 {
				h.EndSession(s.id, model.EndReasonTimeout)
				return
			}
			h.broadcast(s, model.Envelope{
				Type:             model.EventTimerUpdate,
				RemainingSeconds: remaining,
			})
		}
	}
}

func (h *Hub) broadcast(s *chatSession, env model.Envelope) {
	h.mu.Lock()
	caretaker := h.clients[s.caretakerID]
	helpseeker := h.clients[s.helpseekerID]
	h.mu.Unlock()

	if caretaker != nil {
		caretaker.Send(env)
	}
	if helpseeker != nil {
		helpseeker.Send(env)
	}
}

func (h *Hub) recordSession(s *chatSession) {
	if h.registry == nil {
		return
	}

	meta, _ := json.Marshal(map[string]string{
		"caretaker":  s.caretakerID,
		"helpseeker": s.helpseekerID,
	})
	if err := h.registry.Set(context.Background(), sessionKey(s.id), meta, h.duration+time.Minute); err != nil {
		log.Debug("session registry write failed", zap.Error(err))
	}
}

func sessionKey(sessionID string) string {
	return "chat:session:" + sessionID
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
