package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"worklane.org/internal/model"
)

const workspaceColumns = `id, owner, name, coalesce(description,''), coalesce(image_url,''), created_at, updated_at`

func scanWorkspace(row interface{ Scan(...any) error }) (model.Workspace, error) {
	var w model.Workspace
	err := row.Scan(&w.ID, &w.Owner, &w.Name, &w.Description, &w.ImageURL, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return model.Workspace{}, mapError(err)
	}
	return w, nil
}

const memberUserColumns = `u.id, u.role, u.status, u.username, coalesce(u.display_name,''), u.email, coalesce(u.bio,''), coalesce(u.avatar_url,''), u.created_at, u.updated_at`

func scanMemberInfo(rows *sql.Rows) (model.MemberInfo, error) {
	var m model.MemberInfo
	var userRole, userStatus, resRole int16
	err := rows.Scan(&m.User.ID, &userRole, &userStatus, &m.User.Username, &m.User.DisplayName,
		&m.User.Email, &m.User.Bio, &m.User.AvatarURL, &m.User.CreatedAt, &m.User.UpdatedAt, &resRole)
	if err != nil {
		return model.MemberInfo{}, mapError(err)
	}
	if m.User.Role, err = model.UserRoleFromInt(userRole); err != nil {
		return model.MemberInfo{}, err
	}
	if m.User.Status, err = model.UserStatusFromInt(userStatus); err != nil {
		return model.MemberInfo{}, err
	}
	if m.Role, err = model.ResourceRoleFromInt(resRole); err != nil {
		return model.MemberInfo{}, err
	}
	return m, nil
}

// CreateWorkspace inserts the workspace and its initial member list in one
// transaction, then returns the aggregate view. Any failed membership insert
// rolls back the whole creation.
func (s *Store) CreateWorkspace(ctx context.Context, w model.Workspace, members []model.WorkspaceMember) (model.WorkspaceWithMembers, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into workspaces(id, owner, name, description, image_url)
		values ($1,$2,$3,nullif($4,''),nullif($5,''))
	`, w.ID, w.Owner, w.Name, w.Description, w.ImageURL); err != nil {
		return model.WorkspaceWithMembers{}, mapError(err)
	}
	for _, m := range members {
		if _, err := tx.ExecContext(ctx, `
			insert into workspace_members(workspace_id, user_id, role) values ($1,$2,$3)
		`, w.ID, m.Member, int16(m.Role)); err != nil {
			return model.WorkspaceWithMembers{}, mapError(err)
		}
	}
	ws, err := getWorkspace(ctx, tx, w.ID)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	return ws, nil
}

// GetWorkspace returns the workspace with its full member roster.
func (s *Store) GetWorkspace(ctx context.Context, id uuid.UUID) (model.WorkspaceWithMembers, error) {
	return getWorkspace(ctx, s.db, id)
}

// getWorkspace reads the aggregate through q, which is the mutating
// transaction when called from a member write so insert and re-fetch land in
// one atomic unit.
func getWorkspace(ctx context.Context, q querier, id uuid.UUID) (model.WorkspaceWithMembers, error) {
	w, err := scanWorkspace(q.QueryRowContext(ctx,
		`select `+workspaceColumns+` from workspaces where id=$1`, id))
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}

	rows, err := q.QueryContext(ctx, `
		select `+memberUserColumns+`, m.role
		from workspace_members m
		join users u on u.id = m.user_id
		where m.workspace_id=$1
		order by m.role desc, u.username asc
	`, id)
	if err != nil {
		return model.WorkspaceWithMembers{}, mapError(err)
	}
	defer rows.Close()

	var members []model.MemberInfo
	for rows.Next() {
		m, err := scanMemberInfo(rows)
		if err != nil {
			return model.WorkspaceWithMembers{}, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	w.MemberCount = len(members)
	return model.WorkspaceWithMembers{Workspace: w, Members: members}, nil
}

// ListWorkspacesForUser returns the workspaces the user belongs to.
func (s *Store) ListWorkspacesForUser(ctx context.Context, userID uuid.UUID) ([]model.Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+workspaceColumns+`,
			(select count(*) from workspace_members c where c.workspace_id = workspaces.id)
		from workspaces
		join workspace_members m on m.workspace_id = workspaces.id
		where m.user_id=$1
		order by created_at asc
	`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var res []model.Workspace
	for rows.Next() {
		var w model.Workspace
		if err := rows.Scan(&w.ID, &w.Owner, &w.Name, &w.Description, &w.ImageURL,
			&w.CreatedAt, &w.UpdatedAt, &w.MemberCount); err != nil {
			return nil, mapError(err)
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (s *Store) UpdateWorkspaceInfo(ctx context.Context, id uuid.UUID, upd model.WorkspaceUpdate) (model.WorkspaceWithMembers, error) {
	res, err := s.db.ExecContext(ctx, `
		update workspaces set
			name        = coalesce($2, name),
			description = coalesce($3, description),
			image_url   = coalesce($4, image_url),
			updated_at  = now()
		where id=$1
	`, id, upd.Name, upd.Description, upd.ImageURL)
	if err != nil {
		return model.WorkspaceWithMembers{}, mapError(err)
	}
	if err := requireRow(res); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	return s.GetWorkspace(ctx, id)
}

// AddWorkspaceMembers inserts the batch atomically and bumps the workspace
// update marker. A duplicate membership fails the whole batch with a
// conflict.
func (s *Store) AddWorkspaceMembers(ctx context.Context, id uuid.UUID, members []model.WorkspaceMember) (model.WorkspaceWithMembers, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range members {
		if _, err := tx.ExecContext(ctx, `
			insert into workspace_members(workspace_id, user_id, role) values ($1,$2,$3)
		`, id, m.Member, int16(m.Role)); err != nil {
			return model.WorkspaceWithMembers{}, mapError(err)
		}
	}
	if err := touchWorkspaceTx(ctx, tx, id); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	ws, err := getWorkspace(ctx, tx, id)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	return ws, nil
}

func (s *Store) RemoveWorkspaceMember(ctx context.Context, id, userID uuid.UUID) (model.WorkspaceWithMembers, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		delete from workspace_members where workspace_id=$1 and user_id=$2
	`, id, userID)
	if err != nil {
		return model.WorkspaceWithMembers{}, mapError(err)
	}
	if err := requireRow(res); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if err := touchWorkspaceTx(ctx, tx, id); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	ws, err := getWorkspace(ctx, tx, id)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	return ws, nil
}

func (s *Store) SetWorkspaceMemberRole(ctx context.Context, id, userID uuid.UUID, role model.ResourceRole) (model.WorkspaceWithMembers, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update workspace_members set role=$3 where workspace_id=$1 and user_id=$2
	`, id, userID, int16(role))
	if err != nil {
		return model.WorkspaceWithMembers{}, mapError(err)
	}
	if err := requireRow(res); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if err := touchWorkspaceTx(ctx, tx, id); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	ws, err := getWorkspace(ctx, tx, id)
	if err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.WorkspaceWithMembers{}, err
	}
	return ws, nil
}

// DeleteWorkspace removes the workspace; memberships and projects go with it
// via cascading foreign keys.
func (s *Store) DeleteWorkspace(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `delete from workspaces where id=$1`, id)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

// WorkspaceMarker returns the workspace's last update time, the freshness
// marker sessions carry.
func (s *Store) WorkspaceMarker(ctx context.Context, id uuid.UUID) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `select updated_at from workspaces where id=$1`, id).Scan(&t)
	if err != nil {
		return time.Time{}, mapError(err)
	}
	return t, nil
}

func touchWorkspaceTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `update workspaces set updated_at=now() where id=$1`, id)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}
