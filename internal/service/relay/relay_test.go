package relay_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"bone_chat/internal/model"
	"bone_chat/internal/service/auth"
	"bone_chat/internal/service/relay"
	"bone_chat/internal/session"
	"bone_chat/internal/transport"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func (s *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, nil
	}
	cpy := *u
	return &cpy, nil
}

func (s *memUsers) GetByID(_ context.Context, id primitive.ObjectID) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			cpy := *u
			return &cpy, nil
		}
	}
	return nil, nil
}

func (s *memUsers) Create(_ context.Context, u *model.User) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = primitive.NewObjectID()
	s.users[u.Email] = u
	return u.ID, nil
}

type memTokens struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (s *memTokens) Set(_ context.Context, key string, _ any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = struct{}{}
	return nil
}

func (s *memTokens) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok, nil
}

func startTestRelay(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	svc := auth.NewService(
		&memUsers{users: make(map[string]*model.User)},
		&memTokens{keys: make(map[string]struct{})},
		"e2e-secret", time.Hour)
	hub := relay.NewHub(nil, 5*time.Minute, time.Second)
	srv := relay.NewHttpServer("", svc, hub)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, strings.TrimPrefix(ts.URL, "http://")
}

func signupAndLogin(t *testing.T, baseURL, email string) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{
		"email":    email,
		"name":     email,
		"password": "hunter22",
	})
	resp, err := http.Post(baseURL+"/signup", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body, _ = json.Marshal(map[string]string{
		"email":    email,
		"password": "hunter22",
	})
	resp, err = http.Post(baseURL+"/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

type e2eRecorder struct {
	states chan session.State
	msgs   chan model.Message
	ends   chan session.EndReason
}

func newE2ERecorder() *e2eRecorder {
	return &e2eRecorder{
		states: make(chan session.State, 16),
		msgs:   make(chan model.Message, 16),
		ends:   make(chan session.EndReason, 4),
	}
}

func (r *e2eRecorder) callbacks() session.Callbacks {
	return session.Callbacks{
		OnState:   func(s session.State) { r.states <- s },
		OnMessage: func(m model.Message) { r.msgs <- m },
		OnEnd:     func(reason session.EndReason) { r.ends <- reason },
	}
}

func (r *e2eRecorder) waitState(t *testing.T, want session.State) {
	t.Helper()
	for {
		select {
		case s := <-r.states:
			if s == want {
				return
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func (r *e2eRecorder) waitText(t *testing.T, text string) model.Message {
	t.Helper()
	for {
		select {
		case m := <-r.msgs:
			if m.Text == text {
				return m
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for message %q", text)
		}
	}
}

// Full round trip over a real websocket server: two authenticated clients are
// paired, exchange keys and deliver an encrypted message end to end.
func TestEndToEndEncryptedChat(t *testing.T) {
	ts, host := startTestRelay(t)

	tokenA := signupAndLogin(t, ts.URL, "caretaker@example.com")
	tokenB := signupAndLogin(t, ts.URL, "helpseeker@example.com")

	recA := newE2ERecorder()
	recB := newE2ERecorder()
	ctrlA := session.NewController(session.Config{Host: host, Token: tokenA, Callbacks: recA.callbacks()})
	ctrlB := session.NewController(session.Config{Host: host, Token: tokenB, Callbacks: recB.callbacks()})

	require.NoError(t, ctrlA.Start(model.RoleCaretaker))
	require.NoError(t, ctrlB.Start(model.RoleHelpSeeker))

	recA.waitState(t, session.StateLive)
	recB.waitState(t, session.StateLive)
	assert.True(t, ctrlA.EncryptionReady())
	assert.True(t, ctrlB.EncryptionReady())

	require.NoError(t, ctrlA.SendMessage("hello from the caretaker"))

	got := recB.waitText(t, "hello from the caretaker")
	assert.False(t, got.Mine)
	assert.False(t, got.System)

	mine := recA.waitText(t, "hello from the caretaker")
	assert.True(t, mine.Mine)

	// Hanging up propagates to the partner as a disconnect.
	ctrlA.Cancel()
	select {
	case reason := <-recB.ends:
		assert.Equal(t, session.EndDisconnect, reason)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for partner session end")
	}
}

func TestChatWSRejectsInvalidToken(t *testing.T) {
	_, host := startTestRelay(t)

	_, err := transport.Dial(host, "not-a-valid-token")
	assert.Error(t, err)
}

func TestChatWSRequiresToken(t *testing.T) {
	ts, _ := startTestRelay(t)

	resp, err := http.Get(ts.URL + "/chat/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
