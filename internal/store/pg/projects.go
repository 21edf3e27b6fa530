package pg

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"worklane.org/internal/model"
)

const projectColumns = `id, workspace_id, name, coalesce(description,''), coalesce(image_url,''), created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (model.Project, error) {
	var p model.Project
	err := row.Scan(&p.ID, &p.Workspace, &p.Name, &p.Description, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Project{}, mapError(err)
	}
	return p, nil
}

// CreateProject inserts the project and its initial member list in one
// transaction and bumps the parent workspace marker.
func (s *Store) CreateProject(ctx context.Context, p model.Project, members []model.ProjectMember) (model.ProjectWithMembers, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into projects(id, workspace_id, name, description, image_url)
		values ($1,$2,$3,nullif($4,''),nullif($5,''))
	`, p.ID, p.Workspace, p.Name, p.Description, p.ImageURL); err != nil {
		return model.ProjectWithMembers{}, mapError(err)
	}
	for _, m := range members {
		if _, err := tx.ExecContext(ctx, `
			insert into project_members(project_id, user_id, role) values ($1,$2,$3)
		`, p.ID, m.Member, int16(m.Role)); err != nil {
			return model.ProjectWithMembers{}, mapError(err)
		}
	}
	if err := touchWorkspaceTx(ctx, tx, p.Workspace); err != nil {
		return model.ProjectWithMembers{}, err
	}
	agg, err := getProject(ctx, tx, p.ID)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.ProjectWithMembers{}, err
	}
	return agg, nil
}

// GetProject returns the project with its full member roster.
func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (model.ProjectWithMembers, error) {
	return getProject(ctx, s.db, id)
}

// getProject reads the aggregate through q so mutating transactions can
// re-fetch before they commit.
func getProject(ctx context.Context, q querier, id uuid.UUID) (model.ProjectWithMembers, error) {
	p, err := scanProject(q.QueryRowContext(ctx,
		`select `+projectColumns+` from projects where id=$1`, id))
	if err != nil {
		return model.ProjectWithMembers{}, err
	}

	rows, err := q.QueryContext(ctx, `
		select `+memberUserColumns+`, m.role
		from project_members m
		join users u on u.id = m.user_id
		where m.project_id=$1
		order by m.role desc, u.username asc
	`, id)
	if err != nil {
		return model.ProjectWithMembers{}, mapError(err)
	}
	defer rows.Close()

	var members []model.MemberInfo
	for rows.Next() {
		m, err := scanMemberInfo(rows)
		if err != nil {
			return model.ProjectWithMembers{}, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return model.ProjectWithMembers{}, err
	}
	p.MemberCount = len(members)
	return model.ProjectWithMembers{Project: p, Members: members}, nil
}

// ListProjects returns the projects under a workspace.
func (s *Store) ListProjects(ctx context.Context, workspaceID uuid.UUID) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+projectColumns+`,
			(select count(*) from project_members c where c.project_id = projects.id)
		from projects
		where workspace_id=$1
		order by created_at asc
	`, workspaceID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var res []model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Workspace, &p.Name, &p.Description, &p.ImageURL,
			&p.CreatedAt, &p.UpdatedAt, &p.MemberCount); err != nil {
			return nil, mapError(err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *Store) UpdateProjectInfo(ctx context.Context, id uuid.UUID, upd model.ProjectUpdate) (model.ProjectWithMembers, error) {
	res, err := s.db.ExecContext(ctx, `
		update projects set
			name        = coalesce($2, name),
			description = coalesce($3, description),
			image_url   = coalesce($4, image_url),
			updated_at  = now()
		where id=$1
	`, id, upd.Name, upd.Description, upd.ImageURL)
	if err != nil {
		return model.ProjectWithMembers{}, mapError(err)
	}
	if err := requireRow(res); err != nil {
		return model.ProjectWithMembers{}, err
	}
	return s.GetProject(ctx, id)
}

// AddProjectMembers inserts the batch atomically. A duplicate membership
// fails the whole batch with a conflict.
func (s *Store) AddProjectMembers(ctx context.Context, id uuid.UUID, members []model.ProjectMember) (model.ProjectWithMembers, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range members {
		if _, err := tx.ExecContext(ctx, `
			insert into project_members(project_id, user_id, role) values ($1,$2,$3)
		`, id, m.Member, int16(m.Role)); err != nil {
			return model.ProjectWithMembers{}, mapError(err)
		}
	}
	if err := touchProjectTx(ctx, tx, id); err != nil {
		return model.ProjectWithMembers{}, err
	}
	agg, err := getProject(ctx, tx, id)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.ProjectWithMembers{}, err
	}
	return agg, nil
}

func (s *Store) RemoveProjectMember(ctx context.Context, id, userID uuid.UUID) (model.ProjectWithMembers, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		delete from project_members where project_id=$1 and user_id=$2
	`, id, userID)
	if err != nil {
		return model.ProjectWithMembers{}, mapError(err)
	}
	if err := requireRow(res); err != nil {
		return model.ProjectWithMembers{}, err
	}
	if err := touchProjectTx(ctx, tx, id); err != nil {
		return model.ProjectWithMembers{}, err
	}
	agg, err := getProject(ctx, tx, id)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.ProjectWithMembers{}, err
	}
	return agg, nil
}

func (s *Store) SetProjectMemberRole(ctx context.Context, id, userID uuid.UUID, role model.ResourceRole) (model.ProjectWithMembers, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update project_members set role=$3 where project_id=$1 and user_id=$2
	`, id, userID, int16(role))
	if err != nil {
		return model.ProjectWithMembers{}, mapError(err)
	}
	if err := requireRow(res); err != nil {
		return model.ProjectWithMembers{}, err
	}
	if err := touchProjectTx(ctx, tx, id); err != nil {
		return model.ProjectWithMembers{}, err
	}
	agg, err := getProject(ctx, tx, id)
	if err != nil {
		return model.ProjectWithMembers{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.ProjectWithMembers{}, err
	}
	return agg, nil
}

// DeleteProject removes the project; memberships cascade.
func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `delete from projects where id=$1`, id)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

// touchProjectTx bumps the project and its parent workspace so both freshness
// markers advance.
func touchProjectTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `update projects set updated_at=now() where id=$1`, id)
	if err != nil {
		return mapError(err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update workspaces set updated_at=now()
		where id=(select workspace_id from projects where id=$1)
	`, id); err != nil {
		return mapError(err)
	}
	return nil
}
