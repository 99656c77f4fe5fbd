// Package auth implements the engine's user store, permission evaluation,
// and session state, grounded on vaultaire's internal/auth.AuthService:
// bcrypt password hashes, an in-memory index keyed by username and id, and
// golang-jwt personal access tokens (§3 User/Permissions, §4.H).
package auth

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/FairForge/brokerd/internal/ids"
	"github.com/FairForge/brokerd/internal/protocol"
)

// Status is a user account's active/inactive flag.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// GlobalPermissions are the server-wide grants a user holds.
type GlobalPermissions struct {
	ManageServers bool
	ReadServers   bool
	ManageUsers   bool
	ReadUsers     bool
	ManageStreams bool
	ReadStreams   bool
	ManageTopics  bool
	ReadTopics    bool
	PollMessages  bool
	SendMessages  bool
}

// ResourceOverride narrows or widens global permissions for one stream or
// (stream, topic) pair. Evaluation is explicit-allow: absence denies.
type ResourceOverride struct {
	PollMessages bool
	SendMessages bool
	ManageTopics bool
	ReadTopics   bool
}

// Permissions is a user's full grant set: global plus per-resource
// overrides, keyed "streamID" or "streamID/topicID".
type Permissions struct {
	Global    GlobalPermissions
	Overrides map[string]ResourceOverride
}

func streamKey(streamID uint32) string { return fmt.Sprintf("%d", streamID) }
func topicKey(streamID, topicID uint32) string { return fmt.Sprintf("%d/%d", streamID, topicID) }

// CanPoll reports whether the permission set allows polling the given
// (stream, topic), consulting the most specific override, then the stream
// override, then the global grant — explicit-allow at whichever level first
// states an opinion.
func (p Permissions) CanPoll(streamID, topicID uint32) bool {
	if o, ok := p.Overrides[topicKey(streamID, topicID)]; ok {
		return o.PollMessages
	}
	if o, ok := p.Overrides[streamKey(streamID)]; ok {
		return o.PollMessages
	}
	return p.Global.PollMessages
}

// CanSend is CanPoll's analogue for the send-messages grant.
func (p Permissions) CanSend(streamID, topicID uint32) bool {
	if o, ok := p.Overrides[topicKey(streamID, topicID)]; ok {
		return o.SendMessages
	}
	if o, ok := p.Overrides[streamKey(streamID)]; ok {
		return o.SendMessages
	}
	return p.Global.SendMessages
}

// User is one authenticated principal.
type User struct {
	ID           uint32
	Username     string
	PasswordHash string
	Status       Status
	Permissions  Permissions
	CreatedAt    uint64
}

// Store is the engine's user table: an id-keyed map with an auxiliary
// username index, protected by one mutex (§4.G "users").
type Store struct {
	mu          sync.RWMutex
	byID        map[uint32]*User
	byUsername  map[string]uint32
	nextID      uint32
	clock       func() time.Time
}

// NewStore creates an empty user store.
func NewStore(clock func() time.Time) *Store {
	return &Store{
		byID:       make(map[uint32]*User),
		byUsername: make(map[string]uint32),
		clock:      clock,
	}
}

// SeedRoot creates the root user with username/password "iggy"/"iggy" if the
// store is empty, matching the documented first-boot seed (§3).
func (s *Store) SeedRoot() error {
	s.mu.Lock()
	empty := len(s.byID) == 0
	s.mu.Unlock()
	if !empty {
		return nil
	}
	_, err := s.Create("iggy", "iggy", GlobalPermissions{
		ManageServers: true, ReadServers: true, ManageUsers: true, ReadUsers: true,
		ManageStreams: true, ReadStreams: true, ManageTopics: true, ReadTopics: true,
		PollMessages: true, SendMessages: true,
	})
	return err
}

// Create hashes password with bcrypt and inserts a new active user.
// ResourceAlreadyExists if the username is taken.
func (s *Store) Create(username, password string, global GlobalPermissions) (*User, error) {
	if len(username) < 3 || len(username) > 50 {
		return nil, protocol.New(protocol.CodeNameTooShort, "username must be 3-50 bytes")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byUsername[username]; exists {
		return nil, protocol.AlreadyExists("user", username)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, protocol.Wrap(protocol.CodeIoError, "hash password", err)
	}
	s.nextID++
	u := &User{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: string(hash),
		Status:       StatusActive,
		Permissions:  Permissions{Global: global, Overrides: make(map[string]ResourceOverride)},
		CreatedAt:    ids.MicrosNow(s.clock()),
	}
	s.byID[u.ID] = u
	s.byUsername[username] = u.ID
	return u, nil
}

// Authenticate validates username/password and rejects inactive accounts,
// returning InvalidCredentials on any mismatch without distinguishing
// "no such user" from "wrong password" in the response.
func (s *Store) Authenticate(username, password string) (*User, error) {
	s.mu.RLock()
	id, ok := s.byUsername[username]
	var u *User
	if ok {
		u = s.byID[id]
	}
	s.mu.RUnlock()
	if !ok || u.Status != StatusActive {
		return nil, protocol.New(protocol.CodeInvalidCredentials, "invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, protocol.New(protocol.CodeInvalidCredentials, "invalid username or password")
	}
	return u, nil
}

// ByID looks up a user by id.
func (s *Store) ByID(id uint32) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, protocol.NotFound("user", fmt.Sprintf("%d", id))
	}
	return u, nil
}

// Delete removes a user by id.
func (s *Store) Delete(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return protocol.NotFound("user", fmt.Sprintf("%d", id))
	}
	delete(s.byID, id)
	delete(s.byUsername, u.Username)
	return nil
}

// List returns every user ordered by id.
func (s *Store) List() []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
