package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskline/internal/db"
	"taskline/internal/engine/auth"
	"taskline/internal/migrate"
	"taskline/internal/repo"
)

func newService(t *testing.T) (auth.Service, context.Context) {
	t.Helper()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc := auth.Service{
		Repo: repo.Repo{DB: conn},
		Now:  func() time.Time { return time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC) },
	}
	return svc, context.Background()
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, ctx := newService(t)
	u, err := svc.Register(ctx, " alice ", "alice@example.com", "hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "alice" || !u.IsActive || u.ID == 0 {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.PasswordHash == "hunter22" || u.PasswordHash == "" {
		t.Fatalf("password stored in the clear")
	}

	// login works by username and by email
	for _, login := range []string{"alice", "alice@example.com"} {
		got, err := svc.Authenticate(ctx, login, "hunter22")
		if err != nil {
			t.Fatalf("authenticate %q: %v", login, err)
		}
		if got.ID != u.ID {
			t.Fatalf("authenticate %q returned user %d, want %d", login, got.ID, u.ID)
		}
	}

	var lerr auth.LoginError
	if _, err := svc.Authenticate(ctx, "alice", "wrong"); !errors.As(err, &lerr) {
		t.Fatalf("expected login error, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody", "hunter22"); !errors.As(err, &lerr) {
		t.Fatalf("expected login error for unknown user, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, ctx := newService(t)
	cases := []struct {
		name                      string
		username, email, password string
	}{
		{"short username", "al", "a@example.com", "hunter22"},
		{"bad email", "alice", "not-an-email", "hunter22"},
		{"short password", "alice", "a@example.com", "12345"},
	}
	var rerr auth.RegistrationError
	for _, tc := range cases {
		if _, err := svc.Register(ctx, tc.username, tc.email, tc.password); !errors.As(err, &rerr) {
			t.Fatalf("%s: expected registration error, got %v", tc.name, err)
		}
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc, ctx := newService(t)
	if _, err := svc.Register(ctx, "alice", "alice@example.com", "hunter22"); err != nil {
		t.Fatal(err)
	}
	var rerr auth.RegistrationError
	if _, err := svc.Register(ctx, "alice", "other@example.com", "hunter22"); !errors.As(err, &rerr) {
		t.Fatalf("expected duplicate username rejected, got %v", err)
	}
	if _, err := svc.Register(ctx, "bob", "alice@example.com", "hunter22"); !errors.As(err, &rerr) {
		t.Fatalf("expected duplicate email rejected, got %v", err)
	}
}

func TestInactiveUserCannotLogin(t *testing.T) {
	svc, ctx := newService(t)
	u, err := svc.Register(ctx, "alice", "alice@example.com", "hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Repo.SetUserActive(ctx, u.ID, false); err != nil {
		t.Fatal(err)
	}
	var lerr auth.LoginError
	if _, err := svc.Authenticate(ctx, "alice", "hunter22"); !errors.As(err, &lerr) {
		t.Fatalf("expected inactive login rejected, got %v", err)
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := auth.HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !auth.VerifyPassword("correct horse", hash) {
		t.Fatal("round trip failed")
	}
	if auth.VerifyPassword("wrong horse", hash) {
		t.Fatal("wrong password accepted")
	}
	if auth.VerifyPassword("correct horse", "malformed") {
		t.Fatal("malformed stored value accepted")
	}

	// fresh salts make fresh digests
	again, err := auth.HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if hash == again {
		t.Fatal("expected salted hashes to differ")
	}
}
