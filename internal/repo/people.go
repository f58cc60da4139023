package repo

import (
	"context"
	"database/sql"
	"strings"

	"kitchenflow/internal/domain"
)

const profileCols = `id,email,full_name,role,avatar_url,created_at,updated_at`

func scanProfileFields(scan func(dest ...any) error) (domain.Profile, error) {
	var (
		p      domain.Profile
		name   sql.NullString
		avatar sql.NullString
	)
	err := scan(&p.ID, &p.Email, &name, &p.Role, &avatar, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.FullName = name.String
	if avatar.Valid {
		p.AvatarURL = &avatar.String
	}
	return p, nil
}

func (r Repo) InsertProfileTx(ctx context.Context, tx *sql.Tx, p domain.Profile, passwordHash string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO profiles(id,email,full_name,role,password_hash,avatar_url,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.Email, nullable(p.FullName), p.Role, nullable(passwordHash), nullableStringPtr(p.AvatarURL), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+profileCols+` FROM profiles WHERE id=?`, id)
	return scanProfileFields(row.Scan)
}

// GetCredentials returns the profile and stored password hash for an email.
func (r Repo) GetCredentials(ctx context.Context, email string) (domain.Profile, string, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,email,full_name,role,password_hash,avatar_url,created_at,updated_at FROM profiles WHERE email=?`, email)
	var (
		p      domain.Profile
		name   sql.NullString
		hash   sql.NullString
		avatar sql.NullString
	)
	err := row.Scan(&p.ID, &p.Email, &name, &p.Role, &hash, &avatar, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, "", ErrNotFound
	}
	if err != nil {
		return p, "", err
	}
	p.FullName = name.String
	if avatar.Valid {
		p.AvatarURL = &avatar.String
	}
	return p, hash.String, nil
}

// GetUserRole is the role-lookup call: a user has exactly one role.
func (r Repo) GetUserRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM profiles WHERE id=?`, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return role, err
}

func (r Repo) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	return r.queryProfiles(ctx, `SELECT `+profileCols+` FROM profiles ORDER BY full_name, email`)
}

// ListProfilesByRoles returns profiles holding any of the given roles,
// ordered by name; used to offer assignable team members.
func (r Repo) ListProfilesByRoles(ctx context.Context, roles []string) ([]domain.Profile, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(roles)), ",")
	args := make([]any, len(roles))
	for i, role := range roles {
		args[i] = role
	}
	return r.queryProfiles(ctx, `SELECT `+profileCols+` FROM profiles WHERE role IN (`+placeholders+`) ORDER BY full_name, email`, args...)
}

func (r Repo) queryProfiles(ctx context.Context, query string, args ...any) ([]domain.Profile, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Profile
	for rows.Next() {
		p, err := scanProfileFields(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// --- team members ---

const teamMemberCols = `id,user_id,department,phone,status,added_by,created_at,updated_at`

func (r Repo) UpsertTeamMemberTx(ctx context.Context, tx *sql.Tx, m domain.TeamMember) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO team_members(`+teamMemberCols+`) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET department=excluded.department, phone=excluded.phone, status=excluded.status, updated_at=excluded.updated_at`,
		m.ID, m.UserID, nullable(m.Department), nullable(m.Phone), m.Status, nullable(m.AddedBy), m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) ListTeamMembers(ctx context.Context) ([]domain.TeamMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+teamMemberCols+` FROM team_members ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TeamMember
	for rows.Next() {
		var (
			m          domain.TeamMember
			department sql.NullString
			phone      sql.NullString
			addedBy    sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.UserID, &department, &phone, &m.Status, &addedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.Department = department.String
		m.Phone = phone.String
		m.AddedBy = addedBy.String
		res = append(res, m)
	}
	return res, rows.Err()
}
