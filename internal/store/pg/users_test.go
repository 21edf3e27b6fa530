package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"worklane.org/internal/model"
)

func userRowColumns() []string {
	return []string{"id", "role", "status", "username", "display_name", "email",
		"password_hash", "bio", "avatar_url", "created_at", "updated_at"}
}

func TestGetUserByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewWithDB(db)

	id := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery("select .* from users where email").
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns()).
			AddRow(id, int16(1), int16(2), "ada", "Ada L.", "ada@example.com", "hash", "", "", now, now))

	u, err := store.GetUserByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u.ID != id || u.Role != model.UserContributor || u.Status != model.StatusActive {
		t.Fatalf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewWithDB(db)

	mock.ExpectQuery("select .* from users where id").WillReturnError(sql.ErrNoRows)

	if _, err := store.GetUser(context.Background(), uuid.New()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewWithDB(db)

	mock.ExpectQuery("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "users_email_key"})

	_, err = store.CreateUser(context.Background(), model.User{
		ID:       uuid.New(),
		Role:     model.UserContributor,
		Status:   model.StatusInvited,
		Username: "ada",
		Email:    "ada@example.com",
	})
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetUserRejectsCorruptRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewWithDB(db)

	now := time.Now().UTC()
	mock.ExpectQuery("select .* from users where id").
		WillReturnRows(sqlmock.NewRows(userRowColumns()).
			AddRow(uuid.New(), int16(42), int16(2), "ada", "", "ada@example.com", "hash", "", "", now, now))

	if _, err := store.GetUser(context.Background(), uuid.New()); !errors.Is(err, model.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for role 42, got %v", err)
	}
}

func TestDeleteUserTwiceReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewWithDB(db)

	id := uuid.New()
	mock.ExpectExec("update users set status").
		WithArgs(id, int16(model.StatusDeleted)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update users set status").
		WithArgs(id, int16(model.StatusDeleted)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	if err := store.DeleteUser(ctx, id); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.DeleteUser(ctx, id); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
