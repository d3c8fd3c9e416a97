package account

import (
	"context"
	"errors"
	"testing"

	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/internal/store/memory"
	"github.com/Xalid7/oshxona/pkg/config"
	"github.com/Xalid7/oshxona/pkg/jwtutil"
	"golang.org/x/crypto/bcrypt"
)

type authCounts struct {
	attempts, successes int
	errors              map[string]int
}

func (a *authCounts) RecordAuthAttempt()       { a.attempts++ }
func (a *authCounts) RecordAuthSuccess()       { a.successes++ }
func (a *authCounts) RecordAuthError(t string) { a.errors[t]++ }

func newService(t *testing.T) (*Service, *jwtutil.JWTUtil, *authCounts) {
	t.Helper()
	tokens := jwtutil.NewJWTUtil(&config.JWTConfig{SigningKey: "test", ExpirationHours: 1})
	counts := &authCounts{errors: map[string]int{}}
	svc := NewService(memory.New(), tokens, nil, WithHashCost(bcrypt.MinCost), WithAuthRecorder(counts))
	return svc, tokens, counts
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	tests := []struct {
		name     string
		in       UserInput
		wantErr  error
		wantRole string
	}{
		{name: "cook by default", in: UserInput{Username: "oshpaz", Email: "oshpaz@example.com", Password: "secret1"}, wantRole: model.RoleCook},
		{name: "manager", in: UserInput{Username: "boss", Email: "boss@example.com", Password: "secret1", Role: model.RoleManager}, wantRole: model.RoleManager},
		{name: "duplicate username", in: UserInput{Username: "oshpaz", Email: "new@example.com", Password: "secret1"}, wantErr: ErrUserExists},
		{name: "duplicate email", in: UserInput{Username: "other", Email: "boss@example.com", Password: "secret1"}, wantErr: ErrUserExists},
		{name: "short password", in: UserInput{Username: "a", Email: "a@example.com", Password: "123"}, wantErr: ErrInvalidInput},
		{name: "bad email", in: UserInput{Username: "b", Email: "not-an-email", Password: "secret1"}, wantErr: ErrInvalidInput},
		{name: "unknown role", in: UserInput{Username: "c", Email: "c@example.com", Password: "secret1", Role: "chef"}, wantErr: ErrInvalidInput},
		{name: "missing username", in: UserInput{Email: "d@example.com", Password: "secret1"}, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := svc.CreateUser(ctx, tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if u.Role != tt.wantRole || !u.IsActive {
				t.Errorf("user = %+v", u)
			}
			if u.PasswordHash == tt.in.Password {
				t.Error("password stored in clear text")
			}
		})
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, tokens, counts := newService(t)
	u, err := svc.CreateUser(ctx, UserInput{Username: "oshpaz", Email: "oshpaz@example.com", Password: "secret1"})
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Login(ctx, "oshpaz", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := tokens.ValidateToken(res.Token)
	if err != nil {
		t.Fatalf("token invalid: %v", err)
	}
	if claims.UserID != u.ID || claims.Role != model.RoleCook {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := svc.Login(ctx, "oshpaz", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("error = %v, want invalid credentials", err)
	}
	if _, err := svc.Login(ctx, "ghost", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("error = %v, want invalid credentials", err)
	}

	toggled, err := svc.ToggleActive(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if toggled.IsActive {
		t.Error("user should be inactive after toggle")
	}
	if _, err := svc.Login(ctx, "oshpaz", "secret1"); !errors.Is(err, ErrUserInactive) {
		t.Errorf("error = %v, want user inactive", err)
	}

	if counts.attempts != 4 || counts.successes != 1 {
		t.Errorf("attempts = %d successes = %d", counts.attempts, counts.successes)
	}
	if counts.errors["invalid_password"] != 1 || counts.errors["user_not_found"] != 1 || counts.errors["inactive_user"] != 1 {
		t.Errorf("errors = %v", counts.errors)
	}
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	created, err := svc.EnsureAdmin(ctx, "admin", "admin@example.com", "")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("admin should be created on empty store")
	}
	users, err := svc.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Role != model.RoleAdmin {
		t.Errorf("users = %+v", users)
	}

	created, err = svc.EnsureAdmin(ctx, "admin2", "admin2@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("admin should not be seeded twice")
	}
}

func TestToggleUnknownUser(t *testing.T) {
	svc, _, _ := newService(t)
	if _, err := svc.ToggleActive(context.Background(), 42); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want user not found", err)
	}
}
