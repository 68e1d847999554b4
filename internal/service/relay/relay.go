package relay

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bone_chat/internal/model"
	"bone_chat/internal/service/auth"
	"bone_chat/internal/utils/log"
)

type (
	HttpServer struct {
		addr    string
		authSvc *auth.Service
		hub     *Hub
	}

	signupRequest struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}

	loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	tokenResponse struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
)

func NewHttpServer(addr string, authSvc *auth.Service, hub *Hub) *HttpServer {
	return &HttpServer{
		addr:    addr,
		authSvc: authSvc,
		hub:     hub,
	}
}

func (s *HttpServer) Run() error {
	return http.ListenAndServe(s.addr, s.Router())
}

func (s *HttpServer) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/signup", s.HandleSignup()).Methods(http.MethodPost)
	r.HandleFunc("/login", s.HandleLogin()).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.HandleLogout()).Methods(http.MethodPost)
	r.HandleFunc("/chat/ws", s.HandleChatWS()).Methods(http.MethodGet)
	return r
}

func (s *HttpServer) HandleSignup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Email == "" || req.Password == "" {
			http.Error(w, "email and password are required", http.StatusBadRequest)
			return
		}

		u, err := s.authSvc.Signup(r.Context(), req.Email, req.Name, req.Password)
		if err == auth.ErrEmailTaken {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		if err != nil {
			log.Error("signup failed", zap.Error(err))
			http.Error(w, "signup failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(u)
	}
}

func (s *HttpServer) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		token, err := s.authSvc.Login(r.Context(), req.Email, req.Password)
		if err == auth.ErrInvalidCredentials {
			http.Error(w, "invalid credentials", http.StatusForbidden)
			return
		}
		if err != nil {
			log.Error("login failed", zap.Error(err))
			http.Error(w, "login failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: token, TokenType: "bearer"})
	}
}

func (s *HttpServer) HandleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		if err := s.authSvc.Logout(r.Context(), token); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// HandleChatWS authenticates the token query parameter, upgrades and hands
// the connection to the hub. The relay only ever forwards opaque payloads.
func (s *HttpServer) HandleChatWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "token is required", http.StatusUnauthorized)
			return
		}

		userID, err := s.authSvc.VerifyToken(r.Context(), token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "failed to upgrade", http.StatusInternalServerError)
			return
		}

		client := newWSClient(userID, conn)
		if err := s.hub.Register(client); err != nil {
			log.Warn("duplicate chat connection rejected", zap.String("user_id", userID))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
			conn.Close()
			return
		}

		go s.readPump(client)
	}
}

func (s *HttpServer) readPump(client *wsClient) {
	defer func() {
		s.hub.Unregister(client.userID)
		client.conn.Close()
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			log.Debug("chat web socket closed", zap.Error(err))
			break
		}

		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Error("decode client event failed", zap.Error(err))
			continue
		}

		s.hub.HandleEnvelope(client.userID, env)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}
