package users

import (
	"sync"
	"time"
)

// Store is the in-memory user store backing the demo endpoints. It stands in
// for a real database, so reads and writes carry a small artificial latency
// that shows up in the recorded spans.
type Store struct {
	mu     sync.Mutex
	users  []User
	nextID int

	// latency simulates query time; overridable in tests.
	latencyList   time.Duration
	latencyCreate time.Duration
}

// NewStore creates an empty user store.
func NewStore() *Store {
	return &Store{
		nextID:        1,
		latencyList:   100 * time.Millisecond,
		latencyCreate: 50 * time.Millisecond,
	}
}

// List returns a copy of all users.
func (s *Store) List() []User {
	time.Sleep(s.latencyList)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]User, len(s.users))
	copy(out, s.users)
	return out
}

// Create appends a new user, assigning the next id and the creation time.
func (s *Store) Create(name, email string) User {
	time.Sleep(s.latencyCreate)

	s.mu.Lock()
	defer s.mu.Unlock()
	user := User{
		ID:        s.nextID,
		Name:      name,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	s.users = append(s.users, user)
	s.nextID++
	return user
}

// Count returns the number of stored users.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}
