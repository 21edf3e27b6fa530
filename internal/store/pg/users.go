package pg

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"worklane.org/internal/model"
)

const userColumns = `id, role, status, username, coalesce(display_name,''), email, password_hash, coalesce(bio,''), coalesce(avatar_url,''), created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	var role, status int16
	err := row.Scan(&u.ID, &role, &status, &u.Username, &u.DisplayName, &u.Email,
		&u.PasswordHash, &u.Bio, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, mapError(err)
	}
	u.Role, err = model.UserRoleFromInt(role)
	if err != nil {
		return model.User{}, err
	}
	u.Status, err = model.UserStatusFromInt(status)
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into users(id, role, status, username, display_name, email, password_hash, bio, avatar_url)
		values ($1,$2,$3,$4,nullif($5,''),$6,$7,nullif($8,''),nullif($9,''))
		returning `+userColumns,
		u.ID, int16(u.Role), int16(u.Status), u.Username, u.DisplayName, u.Email,
		u.PasswordHash, u.Bio, u.AvatarURL)
	return scanUser(row)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where username=$1`, username)
	return scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]model.User, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users
		where status <> $1
		order by created_at asc
		limit $2 offset $3
	`, int16(model.StatusDeleted), limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var res []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, id uuid.UUID, upd model.UserUpdate) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		update users set
			display_name = coalesce($2, display_name),
			email        = coalesce($3, email),
			bio          = coalesce($4, bio),
			avatar_url   = coalesce($5, avatar_url),
			updated_at   = now()
		where id=$1
		returning `+userColumns,
		id, upd.DisplayName, upd.Email, upd.Bio, upd.AvatarURL)
	return scanUser(row)
}

func (s *Store) SetUserRole(ctx context.Context, id uuid.UUID, role model.UserRole) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		update users set role=$2, updated_at=now() where id=$1
		returning `+userColumns, id, int16(role))
	return scanUser(row)
}

// SetUserStatus moves the account to the given lifecycle status.
func (s *Store) SetUserStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		update users set status=$2, updated_at=now() where id=$1
		returning `+userColumns, id, int16(status))
	return scanUser(row)
}

// SetUserPassword stores a new credential hash and moves the account to the
// given status, used when an invitation is completed.
func (s *Store) SetUserPassword(ctx context.Context, id uuid.UUID, hash string, status model.UserStatus) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		update users set password_hash=$2, status=$3, updated_at=now() where id=$1
		returning `+userColumns, id, hash, int16(status))
	return scanUser(row)
}

// DeleteUser soft-deletes: the row stays for referential integrity but the
// account can no longer log in and disappears from listings.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		update users set status=$2, updated_at=now() where id=$1 and status <> $2
	`, id, int16(model.StatusDeleted))
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}
