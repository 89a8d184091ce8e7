// Package mock provides in-memory checkout collaborators for development
// mode. They are deterministic and safe for concurrent use.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
)

// Account is a seeded customer account.
type Account struct {
	Profile      domain.Profile
	PasswordHash []byte
}

// NewAccount hashes password with bcrypt and returns the account.
func NewAccount(profile domain.Profile, password string) (Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}
	return Account{Profile: profile, PasswordHash: hash}, nil
}

// IdentityStore implements provider.IdentityStore over a fixed account list.
type IdentityStore struct {
	mu      sync.RWMutex
	byEmail map[string]Account
	byID    map[string]Account
	links   map[string]int
}

// NewIdentityStore creates an identity store seeded with accounts.
func NewIdentityStore(accounts ...Account) *IdentityStore {
	s := &IdentityStore{
		byEmail: make(map[string]Account, len(accounts)),
		byID:    make(map[string]Account, len(accounts)),
		links:   make(map[string]int),
	}
	for _, a := range accounts {
		s.Add(a)
	}
	return s
}

// Add registers or replaces an account.
func (s *IdentityStore) Add(a Account) {
	a.Profile.Email = normalizeEmail(a.Profile.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEmail[a.Profile.Email] = a
	s.byID[a.Profile.CustomerID] = a
}

func (s *IdentityStore) LookupByEmail(_ context.Context, email string) (provider.EmailMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return provider.EmailMatch{}, nil
	}
	first, _, _ := strings.Cut(a.Profile.FullName, " ")
	return provider.EmailMatch{
		Exists:  true,
		Account: &provider.AccountSummary{CustomerID: a.Profile.CustomerID, FirstName: first},
	}, nil
}

func (s *IdentityStore) Authenticate(_ context.Context, email, password string) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return domain.Profile{}, provider.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)); err != nil {
		return domain.Profile{}, provider.ErrInvalidCredentials
	}
	return a.Profile, nil
}

// RequestPasswordlessLink records the request. Unknown emails are accepted
// silently so the response does not disclose account existence.
func (s *IdentityStore) RequestPasswordlessLink(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[normalizeEmail(email)]++
	return nil
}

// LinksSent returns how many passwordless links were requested for email.
func (s *IdentityStore) LinksSent(email string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.links[normalizeEmail(email)]
}

func (s *IdentityStore) Profile(_ context.Context, customerID string) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[customerID]
	if !ok {
		return domain.Profile{}, provider.ErrCustomerNotFound
	}
	return a.Profile, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
