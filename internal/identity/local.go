package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kalambet/pathway/internal/notify"
	"github.com/kalambet/pathway/internal/storage"
)

const currentUserKey = "current_user"

// AccountStore is the persistence the local provider needs.
// Implemented by storage.Store.
type AccountStore interface {
	CreateAccount(ctx context.Context, a storage.Account) error
	GetAccountByEmail(ctx context.Context, email string) (storage.Account, error)
	SetAuthState(ctx context.Context, key, value string) error
	GetAuthState(ctx context.Context, key string) (string, error)
	DeleteAuthState(ctx context.Context, key string) error
}

type credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

// Local is a Provider backed by accounts in the local store. One user is
// signed in at a time and survives restarts.
type Local struct {
	store    AccountStore
	validate *validator.Validate
	cost     int
	logger   *slog.Logger

	mu        sync.Mutex
	current   *User
	observers map[*notify.Queue[*User]]struct{}
}

// LocalOption configures a Local provider.
type LocalOption func(*Local)

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) LocalOption {
	return func(l *Local) { l.cost = cost }
}

// NewLocal creates a provider and restores the previously signed-in user.
func NewLocal(ctx context.Context, store AccountStore, opts ...LocalOption) (*Local, error) {
	l := &Local{
		store:     store,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		cost:      bcrypt.DefaultCost,
		logger:    slog.Default(),
		observers: make(map[*notify.Queue[*User]]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	raw, err := store.GetAuthState(ctx, currentUserKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("restoring signed-in user: %w", err)
	default:
		var u User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			l.logger.Warn("discarding unreadable signed-in user", "error", err)
		} else {
			l.current = &u
		}
	}
	return l, nil
}

func (l *Local) OnAuthStateChanged(fn func(*User)) func() {
	q := notify.NewQueue(fn)

	l.mu.Lock()
	l.observers[q] = struct{}{}
	q.Push(copyUser(l.current))
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.observers, q)
			l.mu.Unlock()
			q.Close()
		})
	}
}

func (l *Local) CurrentUser() *User {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyUser(l.current)
}

func (l *Local) SignUp(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if err := l.checkCredentials(email, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	acct := storage.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := l.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, codeErr(CodeEmailAlreadyInUse, nil)
		}
		return nil, fmt.Errorf("creating account: %w", err)
	}

	u := &User{ID: acct.ID, Email: acct.Email}
	if err := l.setCurrent(ctx, u); err != nil {
		return nil, err
	}
	l.logger.Info("account created", "user_id", u.ID)
	return copyUser(u), nil
}

func (l *Local) SignIn(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, codeErr(CodeInvalidCredential, nil)
	}

	acct, err := l.store.GetAccountByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, codeErr(CodeUserNotFound, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, codeErr(CodeWrongPassword, nil)
	}

	u := &User{ID: acct.ID, Email: acct.Email}
	if err := l.setCurrent(ctx, u); err != nil {
		return nil, err
	}
	return copyUser(u), nil
}

func (l *Local) SignOut(ctx context.Context) error {
	if err := l.store.DeleteAuthState(ctx, currentUserKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("clearing signed-in user: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil
	}
	l.current = nil
	l.broadcastLocked()
	return nil
}

func (l *Local) setCurrent(ctx context.Context, u *User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encoding signed-in user: %w", err)
	}
	if err := l.store.SetAuthState(ctx, currentUserKey, string(raw)); err != nil {
		return fmt.Errorf("persisting signed-in user: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil && *l.current == *u {
		return nil
	}
	l.current = copyUser(u)
	l.broadcastLocked()
	return nil
}

func (l *Local) broadcastLocked() {
	for q := range l.observers {
		q.Push(copyUser(l.current))
	}
}

func (l *Local) checkCredentials(email, password string) error {
	err := l.validate.Struct(credentials{Email: email, Password: password})
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating credentials: %w", err)
	}
	for _, fe := range verrs {
		if fe.Field() == "Email" {
			return codeErr(CodeInvalidEmail, fe)
		}
	}
	return codeErr(CodeWeakPassword, verrs[0])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
