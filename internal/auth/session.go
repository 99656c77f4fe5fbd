package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the per-connection auth and identity state (§3 Session). Every
// accepted connection gets exactly one.
type Session struct {
	ClientID      uint32
	Transport     string // "tcp" | "quic" | "http"
	RemoteAddress string

	mu            sync.RWMutex
	userID        uint32
	authenticated bool
}

// Authenticate transitions Unauthenticated -> Authenticated(userID) (§4.H).
func (s *Session) Authenticate(userID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.authenticated = true
}

// Logout transitions Authenticated -> Unauthenticated.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = 0
	s.authenticated = false
}

// IsAuthenticated and UserID report the session's current state.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

func (s *Session) UserID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Registry is the system's live client registry, one Session per connection,
// keyed by a monotonically assigned client id.
type Registry struct {
	mu       sync.Mutex
	sessions map[uint32]*Session
	nextID   uint32
}

// NewRegistry creates an empty client registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uint32]*Session)}
}

// Open allocates a new client id and session for a freshly accepted
// connection.
func (r *Registry) Open(transport, remoteAddress string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	s := &Session{ClientID: r.nextID, Transport: transport, RemoteAddress: remoteAddress}
	r.sessions[s.ClientID] = s
	return s
}

// Close removes a session on connection drop.
func (r *Registry) Close(clientID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, clientID)
}

// Count reports the number of live sessions, used by the stats/metrics
// surface.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// patClaims is the JWT claim set for a personal access token, grounded on
// vaultaire's auth.JWTClaims shape.
type patClaims struct {
	UserID uint32 `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies personal access tokens for the HTTP
// transport (§6 http.jwt).
type TokenIssuer struct {
	secret []byte
	expiry time.Duration
}

// NewTokenIssuer builds an issuer from the configured secret and expiry.
func NewTokenIssuer(secret string, expiry time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), expiry: expiry}
}

// Issue signs a new token for userID.
func (t *TokenIssuer) Issue(userID uint32) (string, error) {
	claims := patClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "brokerd",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify parses and validates token, returning its subject user id.
func (t *TokenIssuer) Verify(token string) (uint32, error) {
	parsed, err := jwt.ParseWithClaims(token, &patClaims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("auth: parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*patClaims)
	if !ok || !parsed.Valid {
		return 0, fmt.Errorf("auth: invalid token")
	}
	return claims.UserID, nil
}
