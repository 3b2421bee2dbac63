package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
)

const testSecret = "unit-test-secret-with-enough-entropy"

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func legacyStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin12345",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := legacyStore()
	manager := NewAuthManager(testSecret, time.Hour, users)

	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin12345"})
	require.NoError(t, err)

	stored, err := users.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotEqual(t, "admin12345", stored[0].Password)
	assert.True(t, strings.HasPrefix(stored[0].Password, "$2"))
	assert.GreaterOrEqual(t, users.updates, 1)
}

func TestLegacyRoleSpellingAccepted(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{
		"bola": {Username: "bola", Password: "bola-secret", Role: "sales_person", Active: true},
	}}
	manager := NewAuthManager(testSecret, time.Hour, users)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "bola", Password: "bola-secret"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSalesAgent, resp.Role)
}

func TestTokenRoundTripCarriesCustomer(t *testing.T) {
	manager := NewAuthManager(testSecret, time.Hour, legacyStore())
	ctx := context.Background()

	_, err := manager.CreateUser(ctx, domain.UserCreateRequest{
		Username:   "amaka",
		Password:   "amaka-secret",
		Role:       "customer",
		CustomerID: "cus-amaka",
	})
	require.NoError(t, err)

	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "Amaka ", Password: "amaka-secret"})
	require.NoError(t, err)

	actor, err := manager.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{Username: "amaka", Role: domain.RoleCustomer, CustomerID: "cus-amaka"}, actor)
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	manager := NewAuthManager(testSecret, time.Hour, legacyStore())
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    tokenIssuer,
		},
		Role: domain.RoleAdmin,
	}

	otherKey, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("some-other-secret"))
	require.NoError(t, err)
	_, err = manager.ParseToken(otherKey)
	assert.Error(t, err)

	hs512, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = manager.ParseToken(hs512)
	assert.Error(t, err)

	claims.Issuer = "someone-else"
	wrongIssuer, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = manager.ParseToken(wrongIssuer)
	assert.Error(t, err)

	claims.Issuer = tokenIssuer
	claims.ExpiresAt = jwtlib.NewNumericDate(time.Now().Add(-time.Minute))
	expired, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = manager.ParseToken(expired)
	assert.Error(t, err)
}

func TestCreateUserRules(t *testing.T) {
	manager := NewAuthManager(testSecret, time.Hour, legacyStore())
	ctx := context.Background()

	_, err := manager.CreateUser(ctx, domain.UserCreateRequest{Username: "walkin", Password: "walkin-secret", Role: "customer"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = manager.CreateUser(ctx, domain.UserCreateRequest{Username: "chief", Password: "chief-secret", Role: "owner"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = manager.CreateUser(ctx, domain.UserCreateRequest{Username: "admin", Password: "another-secret", Role: "manager"})
	assert.ErrorIs(t, err, store.ErrConflict)

	created, err := manager.CreateUser(ctx, domain.UserCreateRequest{Username: "ngozi", Password: "ngozi-secret", Role: "manager", CustomerID: "cus-x"})
	require.NoError(t, err)
	assert.Empty(t, created.CustomerID)

	listed := manager.ListUsers(ctx)
	require.Len(t, listed, 2)
	assert.Equal(t, "admin", listed[0].Username)
	assert.Equal(t, "ngozi", listed[1].Username)
}

func TestRefreshRereadsRole(t *testing.T) {
	users := legacyStore()
	manager := NewAuthManager(testSecret, time.Hour, users)
	ctx := context.Background()

	_, err := manager.CreateUser(ctx, domain.UserCreateRequest{Username: "femi", Password: "femi-secret", Role: "manager"})
	require.NoError(t, err)

	users.mu.Lock()
	femi := users.users["femi"]
	femi.Role = domain.RoleSalesAgent
	users.users["femi"] = femi
	users.mu.Unlock()

	resp, err := manager.Refresh(ctx, domain.Actor{Username: "femi", Role: domain.RoleManager})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSalesAgent, resp.Role)

	users.mu.Lock()
	femi.Active = false
	users.users["femi"] = femi
	users.mu.Unlock()

	_, err = manager.Refresh(ctx, domain.Actor{Username: "femi", Role: domain.RoleSalesAgent})
	assert.Error(t, err)
	_, err = manager.Login(ctx, domain.LoginRequest{Username: "femi", Password: "femi-secret"})
	assert.Error(t, err)
}
