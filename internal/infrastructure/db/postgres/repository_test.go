package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/eventops/auth-gateway/internal/core/domain"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return db, mock
}

var userColumns = []string{
	"id", "email", "username", "password_hash", "first_name", "last_name",
	"role_id", "name", "is_active", "deleted_at", "failed_login_attempts",
	"locked_until", "last_login_at", "created_at", "updated_at",
}

func TestUserRepositoryFindByEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	locked := created.Add(time.Hour)

	mock.ExpectQuery(`where lower\(u.email\) = lower\(\$1\)`).
		WithArgs("Ana@Example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			"u-1", "ana@example.com", "ana", "hash", "Ana", "Diaz",
			"r-1", "ORGANIZER", true, nil, 2,
			locked, nil, created, created,
		))

	u, err := repo.FindByEmail(context.Background(), "Ana@Example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if u.Role != domain.RoleOrganizer || u.FailedLoginAttempts != 2 {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.LockedUntil == nil || !u.LockedUntil.Equal(locked) {
		t.Fatalf("LockedUntil = %v, want %v", u.LockedUntil, locked)
	}
	if u.DeletedAt != nil || u.LastLoginAt != nil {
		t.Fatal("null timestamps should stay nil")
	}
}

func TestUserRepositoryNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"no rows", sql.ErrNoRows},
		{"malformed id", &pgconn.PgError{Code: pgErrInvalidText}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectQuery(`where u.id = \$1`).WithArgs("nope").WillReturnError(tt.err)

			_, err := NewUserRepository(db).FindByID(context.Background(), "nope")
			if !errors.Is(err, domain.ErrUserNotFound) {
				t.Fatalf("err = %v, want ErrUserNotFound", err)
			}
		})
	}
}

func TestUserRepositoryCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`insert into users`).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := NewUserRepository(db).Create(context.Background(), &domain.User{Email: "a@example.com", Username: "a"})
	if !errors.Is(err, domain.ErrUserAlreadyExists) {
		t.Fatalf("err = %v, want ErrUserAlreadyExists", err)
	}
}

func TestUserRepositoryCreateAssignsID(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`insert into users`).
		WithArgs(sqlmock.AnyArg(), "a@example.com", "a", "hash", "", "", "r-1", true, now, now).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	u, err := NewUserRepository(db).Create(context.Background(), &domain.User{
		Email: "a@example.com", Username: "a", PasswordHash: "hash", RoleID: "r-1",
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected generated id")
	}
}

func TestUserRepositoryRecordFailedLogin(t *testing.T) {
	db, mock := newMock(t)
	lockUntil := time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC)
	mock.ExpectQuery(`update users\s+set failed_login_attempts = failed_login_attempts \+ 1`).
		WithArgs("u-1", 5, lockUntil).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts"}).AddRow(5))

	n, err := NewUserRepository(db).RecordFailedLogin(context.Background(), "u-1", 5, lockUntil)
	if err != nil {
		t.Fatalf("RecordFailedLogin: %v", err)
	}
	if n != 5 {
		t.Fatalf("attempts = %d, want 5", n)
	}
}

func TestUserRepositoryUpdatePasswordMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`update users set password_hash`).
		WithArgs("u-1", "new").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewUserRepository(db).UpdatePassword(context.Background(), "u-1", "new")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestSessionRepositoryRotateRefresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"swapped", 1, true},
		{"stale digest", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectExec(`update sessions\s+set refresh_token_hash = \$3`).
				WithArgs("s-1", "old", "new", now).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := NewSessionRepository(db).RotateRefresh(context.Background(), "s-1", "old", "new", now)
			if err != nil {
				t.Fatalf("RotateRefresh: %v", err)
			}
			if ok != tt.want {
				t.Fatalf("swapped = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestSessionRepositoryDeactivateMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`update sessions set is_active = false where id = \$1`).
		WithArgs("s-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewSessionRepository(db).Deactivate(context.Background(), "s-404")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionRepositoryListActive(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{
		"id", "user_id", "session_token", "refresh_token_hash", "remember_me", "ip_address",
		"user_agent", "is_active", "created_at", "expires_at", "last_activity_at",
	}
	mock.ExpectQuery(`where user_id = \$1 and is_active and expires_at > \$2`).
		WithArgs("u-1", now).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("s-1", "u-1", "tok-1", "h1", false, "10.0.0.1", "ua", true, now, now.Add(time.Hour), now).
			AddRow("s-2", "u-1", "tok-2", "h2", true, "10.0.0.2", "ua", true, now, now.Add(time.Hour), now))

	sessions, err := NewSessionRepository(db).ListActive(context.Background(), "u-1", now)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(sessions) != 2 || sessions[1].ID != "s-2" || !sessions[1].RememberMe {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
}

func TestCSRFRepositoryMarkUsed(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCSRFRepository(db)
	mock.ExpectExec(`update csrf_tokens set used = true where token = \$1 and used = false`).
		WithArgs("tok").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`update csrf_tokens set used = true`).
		WithArgs("tok").
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := repo.MarkUsed(context.Background(), "tok")
	if err != nil || !first {
		t.Fatalf("first MarkUsed = %v, %v", first, err)
	}
	second, err := repo.MarkUsed(context.Background(), "tok")
	if err != nil || second {
		t.Fatalf("second MarkUsed = %v, %v", second, err)
	}
}

func TestCSRFRepositoryFindMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`from csrf_tokens`).WithArgs("gone").WillReturnError(sql.ErrNoRows)

	_, err := NewCSRFRepository(db).FindByToken(context.Background(), "gone")
	if !errors.Is(err, domain.ErrCSRFNotFound) {
		t.Fatalf("err = %v, want ErrCSRFNotFound", err)
	}
}

func TestBlacklist(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bl := NewBlacklist(db)
	bl.now = func() time.Time { return now }

	exp := now.Add(time.Hour)
	mock.ExpectExec(`insert into blacklisted_tokens`).
		WithArgs("jti-1", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`select exists`).
		WithArgs("jti-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`select exists`).
		WithArgs("jti-2", now).
		WillReturnError(errors.New("connection reset"))

	if err := bl.Add(context.Background(), "jti-1", exp); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ok, err := bl.IsBlacklisted(context.Background(), "jti-1")
	if err != nil || !ok {
		t.Fatalf("IsBlacklisted = %v, %v", ok, err)
	}
	if _, err := bl.IsBlacklisted(context.Background(), "jti-2"); err == nil {
		t.Fatal("expected lookup error")
	}
}

func TestResourceOwnerRepository(t *testing.T) {
	tests := []struct {
		name    string
		resType string
		setup   func(sqlmock.Sqlmock)
		want    string
		wantErr error
	}{
		{
			name:    "project owner",
			resType: "project",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(`select owner_id from projects`).WithArgs("p-1").
					WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("u-1"))
			},
			want: "u-1",
		},
		{
			name:    "unassigned task",
			resType: "task",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(`select assignee_id from tasks`).WithArgs("p-1").
					WillReturnRows(sqlmock.NewRows([]string{"assignee_id"}).AddRow(nil))
			},
			wantErr: domain.ErrResourceNotFound,
		},
		{
			name:    "unknown type",
			resType: "invoice",
			setup:   func(sqlmock.Sqlmock) {},
			wantErr: domain.ErrResourceNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			tt.setup(mock)

			owner, err := NewResourceOwnerRepository(db).OwnerOf(context.Background(), tt.resType, "p-1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || owner != tt.want {
				t.Fatalf("OwnerOf = %q, %v", owner, err)
			}
		})
	}
}
