package httpapi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
)

const (
	tokenIssuer      = "mafaconnect"
	userStoreTimeout = 5 * time.Second
)

var errInvalidCredentials = errors.New("invalid credentials")

type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	users     map[string]credential
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	password   string
	role       domain.Role
	customerID string
	active     bool
	created    time.Time
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Role       domain.Role `json:"role"`
	CustomerID string      `json:"customer_id,omitempty"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	manager := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
	}
	ctx, cancel := context.WithTimeout(context.Background(), userStoreTimeout)
	defer cancel()
	manager.bootstrapUsers(ctx)
	return manager
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	if !ok {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	return a.issue(domain.Actor{Username: username, Role: cred.role, CustomerID: cred.customerID})
}

// Refresh re-issues a token for an actor whose current token is still valid.
// The role is re-read so demotions take effect.
func (a *AuthManager) Refresh(ctx context.Context, actor domain.Actor) (domain.LoginResponse, error) {
	a.bootstrapUsers(ctx)
	a.mu.RLock()
	cred, ok := a.users[actor.Username]
	a.mu.RUnlock()
	if !ok || !cred.active {
		return domain.LoginResponse{}, errors.New("account is no longer active")
	}
	return a.issue(domain.Actor{Username: actor.Username, Role: cred.role, CustomerID: cred.customerID})
}

func (a *AuthManager) issue(actor domain.Actor) (domain.LoginResponse, error) {
	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(actor, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        actor.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &accessClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	role, err := domain.ParseRole(string(claims.Role))
	if err != nil {
		return domain.Actor{}, errors.New("invalid token role")
	}
	return domain.Actor{Username: sub, Role: role, CustomerID: claims.CustomerID}, nil
}

func (a *AuthManager) sign(actor domain.Actor, expiresAt time.Time) (string, error) {
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   actor.Username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role:       actor.Role,
		CustomerID: actor.CustomerID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// CreateUser provisions a login. Customer logins must name the customer
// record they may act for.
func (a *AuthManager) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserSummary, error) {
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.UserSummary{}, fmt.Errorf("%w: username must be at least 4 characters", store.ErrInvalidInput)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.UserSummary{}, fmt.Errorf("%w: username must not contain spaces", store.ErrInvalidInput)
	}
	if len(req.Password) < 8 {
		return domain.UserSummary{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalidInput)
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return domain.UserSummary{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	customerID := strings.TrimSpace(req.CustomerID)
	if role == domain.RoleCustomer && customerID == "" {
		return domain.UserSummary{}, fmt.Errorf("%w: customer accounts need a customer_id", store.ErrInvalidInput)
	}
	if role != domain.RoleCustomer {
		customerID = ""
	}

	a.mu.RLock()
	_, exists := a.users[username]
	a.mu.RUnlock()
	if exists {
		return domain.UserSummary{}, fmt.Errorf("username %s: %w", username, store.ErrConflict)
	}

	now := time.Now().UTC()
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserSummary{}, fmt.Errorf("hash password: %w", err)
	}

	if a.userStore != nil {
		if err := a.userStore.CreateUser(ctx, domain.UserAccount{
			Username:   username,
			Password:   passwordHash,
			Role:       role,
			CustomerID: customerID,
			Active:     true,
			CreatedAt:  now,
		}); err != nil {
			return domain.UserSummary{}, err
		}
	}

	a.mu.Lock()
	a.users[username] = credential{
		password:   passwordHash,
		role:       role,
		customerID: customerID,
		active:     true,
		created:    now,
	}
	a.mu.Unlock()

	return domain.UserSummary{
		Username:   username,
		Role:       role,
		CustomerID: customerID,
		Active:     true,
		CreatedAt:  now,
	}, nil
}

func (a *AuthManager) ListUsers(ctx context.Context) []domain.UserSummary {
	a.bootstrapUsers(ctx)
	a.mu.RLock()
	result := make([]domain.UserSummary, 0, len(a.users))
	for username, user := range a.users {
		result = append(result, domain.UserSummary{
			Username:   username,
			Role:       user.role,
			CustomerID: user.customerID,
			Active:     user.active,
			CreatedAt:  user.created,
		})
	}
	a.mu.RUnlock()
	slices.SortFunc(result, func(x, y domain.UserSummary) int {
		return strings.Compare(x.Username, y.Username)
	})
	return result
}

// bootstrapUsers refreshes the credential cache from the user store and
// upgrades any plain-text password it finds to a bcrypt hash.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, userStoreTimeout)
	defer cancel()

	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "auth").Msg("failed to load users")
		return
	}
	if len(users) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		role, err := domain.ParseRole(string(user.Role))
		if err != nil {
			log.Warn().Str("username", username).Str("role", string(user.Role)).Msg("skipping user with unknown role")
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				_ = a.userStore.UpdateUserPassword(ctx, username, hashed)
			}
		}
		a.users[username] = credential{
			password:   password,
			role:       role,
			customerID: user.CustomerID,
			active:     user.Active,
			created:    user.CreatedAt,
		}
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
