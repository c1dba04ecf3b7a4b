package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
)

type fakeRepository struct {
	byID    map[uuid.UUID]*models.User
	byEmail map[string]*models.User
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		byID:    make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]*models.User),
	}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, user *models.User) error {
	if _, ok := f.byEmail[user.Email]; ok {
		return errors.New(`duplicate key value violates unique constraint "idx_users_email"`)
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	f.byID[user.ID] = user
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeRepository) Update(ctx context.Context, user *models.User) error {
	f.byID[user.ID] = user
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := f.byID[id]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := f.byEmail[email]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if user, ok := f.byID[id]; ok {
		user.LastLoginAt = &at
	}
	return nil
}

func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func newUserService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(repo, testPasswordConfig())
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newUserService(t, newFakeRepository())

	user, err := svc.Register(context.Background(), RegisterInput{
		Email:     "Ada@Example.com",
		Password:  "long-enough-pass",
		FirstName: "Ada",
		LastName:  "Okafor",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %s", user.Email)
	}
	if user.PasswordHash == "long-enough-pass" {
		t.Fatal("password stored in plain text")
	}

	logged, err := svc.Login(context.Background(), "ada@example.com", "long-enough-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if logged.LastLoginAt == nil {
		t.Fatal("last login not recorded")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newUserService(t, newFakeRepository())
	input := RegisterInput{
		Email:     "ada@example.com",
		Password:  "long-enough-pass",
		FirstName: "Ada",
		LastName:  "Okafor",
	}
	if _, err := svc.Register(context.Background(), input); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err := svc.Register(context.Background(), input)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newUserService(t, newFakeRepository())
	if _, err := svc.Register(context.Background(), RegisterInput{
		Email:     "ada@example.com",
		Password:  "long-enough-pass",
		FirstName: "Ada",
		LastName:  "Okafor",
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err := svc.Login(context.Background(), "ada@example.com", "wrong-password")
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLoginDeactivatedAccount(t *testing.T) {
	repo := newFakeRepository()
	svc := newUserService(t, repo)
	user, err := svc.Register(context.Background(), RegisterInput{
		Email:     "ada@example.com",
		Password:  "long-enough-pass",
		FirstName: "Ada",
		LastName:  "Okafor",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := svc.Deactivate(context.Background(), user.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	_, err = svc.Login(context.Background(), "ada@example.com", "long-enough-pass")
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newUserService(t, newFakeRepository())
	cases := []struct {
		name  string
		input RegisterInput
	}{
		{"bad email", RegisterInput{Email: "not-an-email", Password: "long-enough-pass", FirstName: "A", LastName: "B"}},
		{"short password", RegisterInput{Email: "a@b.com", Password: "short", FirstName: "A", LastName: "B"}},
		{"missing name", RegisterInput{Email: "a@b.com", Password: "long-enough-pass"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tc.input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestChangePassword(t *testing.T) {
	svc := newUserService(t, newFakeRepository())
	user, err := svc.Register(context.Background(), RegisterInput{
		Email:     "ada@example.com",
		Password:  "long-enough-pass",
		FirstName: "Ada",
		LastName:  "Okafor",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := svc.ChangePassword(context.Background(), user.ID, "wrong", "another-long-pass"); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), user.ID, "long-enough-pass", "another-long-pass"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if _, err := svc.Login(context.Background(), "ada@example.com", "another-long-pass"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}
