package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quadchat/quadchat/internal/validation"
)

type fakeRepo struct {
	users map[ID]User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[ID]User)}
}

func (r *fakeRepo) Create(_ context.Context, u User) error {
	for _, existing := range r.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrAlreadyExists
		}
	}
	r.users[u.ID] = u
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id ID) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *fakeRepo) GetByUsername(_ context.Context, username string) (User, error) {
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *fakeRepo) UpdateProfile(_ context.Context, id ID, displayName, avatarURL, bio string) error {
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.DisplayName = displayName
	u.AvatarURL = avatarURL
	u.Bio = bio
	r.users[id] = u
	return nil
}

func newTestService() (*Service, *fakeRepo) {
	repo := newFakeRepo()
	svc := NewService(repo, validation.New(0))
	svc.idGen = func() string { return "user-1" }
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, repo
}

func TestCreateWithPassword(t *testing.T) {
	svc, repo := newTestService()

	u, err := svc.CreateWithPassword(context.Background(), "Alice", "alice@example.edu", "hash", "Alice B.")
	if err != nil {
		t.Fatalf("CreateWithPassword() error = %v", err)
	}
	if u.ID != "user-1" {
		t.Fatalf("ID = %q, want user-1", u.ID)
	}
	if u.Username != "alice" {
		t.Fatalf("Username = %q, want lowercase alice", u.Username)
	}
	if u.DisplayName != "Alice B." {
		t.Fatalf("DisplayName = %q", u.DisplayName)
	}
	if _, ok := repo.users["user-1"]; !ok {
		t.Fatal("expected user to be persisted")
	}
}

func TestCreateWithPassword_DisplayDefaultsToUsername(t *testing.T) {
	svc, _ := newTestService()

	u, err := svc.CreateWithPassword(context.Background(), "bob", "bob@example.edu", "hash", "  ")
	if err != nil {
		t.Fatalf("CreateWithPassword() error = %v", err)
	}
	if u.DisplayName != "bob" {
		t.Fatalf("DisplayName = %q, want bob", u.DisplayName)
	}
}

func TestCreateWithPassword_Invalid(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateWithPassword(ctx, "a", "a@example.edu", "hash", ""); !errors.Is(err, validation.ErrInvalidInput) {
		t.Fatalf("short username error = %v", err)
	}
	if _, err := svc.CreateWithPassword(ctx, "carol", "not-an-email", "hash", ""); !errors.Is(err, validation.ErrInvalidInput) {
		t.Fatalf("bad email error = %v", err)
	}
	if _, err := svc.CreateWithPassword(ctx, "carol", "carol@example.edu", "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing hash error = %v", err)
	}
}

func TestCreateWithPassword_Duplicate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateWithPassword(ctx, "alice", "alice@example.edu", "hash", ""); err != nil {
		t.Fatalf("CreateWithPassword() error = %v", err)
	}
	svc.idGen = func() string { return "user-2" }
	if _, err := svc.CreateWithPassword(ctx, "ALICE", "other@example.edu", "hash", ""); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate username error = %v, want ErrAlreadyExists", err)
	}
}

func TestGetByUsername_Normalizes(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateWithPassword(ctx, "alice", "alice@example.edu", "hash", ""); err != nil {
		t.Fatalf("CreateWithPassword() error = %v", err)
	}
	u, err := svc.GetByUsername(ctx, "  ALICE ")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if u.ID != "user-1" {
		t.Fatalf("ID = %q, want user-1", u.ID)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateWithPassword(ctx, "alice", "alice@example.edu", "hash", ""); err != nil {
		t.Fatalf("CreateWithPassword() error = %v", err)
	}
	updated, err := svc.UpdateProfile(ctx, "user-1", "Alice B.", " https://cdn.example.edu/a.png ", " hi ")
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.DisplayName != "Alice B." || updated.AvatarURL != "https://cdn.example.edu/a.png" || updated.Bio != "hi" {
		t.Fatalf("updated = %+v", updated)
	}
}

func TestUpdateProfile_NotFound(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.UpdateProfile(context.Background(), "missing", "Name", "", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateProfile() error = %v, want ErrNotFound", err)
	}
}
