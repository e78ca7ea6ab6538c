package team

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Columns is the column list matching ScanTeam, usable with a table alias prefix.
const Columns = `id, name, description, is_public, max_members, postal_code,
		       created_by, created_at, updated_at, archived_at`

// ScanTeam scans a row produced by a SELECT of Columns.
func ScanTeam(row pgx.Row) (*Team, error) {
	var t Team
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.IsPublic, &t.MaxMembers, &t.PostalCode,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &t.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ScanMember scans team_id, user_id, user name, role, joined_at.
func ScanMember(row pgx.Row) (*Member, error) {
	var m Member
	var role string
	if err := row.Scan(&m.TeamID, &m.UserID, &m.UserName, &role, &m.JoinedAt); err != nil {
		return nil, err
	}
	r, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	m.Role = r
	return &m, nil
}

// likeEscaper quotes LIKE wildcards so a name filter matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new team and its creator membership in one transaction.
func (r *PostgresRepository) Create(ctx context.Context, t *Team) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO teams (name, description, is_public, max_members, postal_code, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at`

		err := tx.QueryRow(ctx, query,
			t.Name, t.Description, t.IsPublic, t.MaxMembers, t.PostalCode, t.CreatedBy,
		).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting team: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO team_members (team_id, user_id, role)
			VALUES ($1, $2, $3)`,
			t.ID, t.CreatedBy, RoleCreator.String())
		if err != nil {
			return fmt.Errorf("inserting creator membership: %w", err)
		}

		return nil
	})
}

// GetByID retrieves a single active (non-archived) team by its UUID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Team, error) {
	query := `SELECT ` + Columns + `
		FROM teams
		WHERE id = $1 AND archived_at IS NULL`

	t, err := ScanTeam(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("querying team: %w", err)
	}

	return t, nil
}

// List retrieves a paginated list of active teams. Without a MemberID filter
// only public teams are returned; with it, every team the user belongs to.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, "archived_at IS NULL")

	if filter.MemberID != nil {
		conditions = append(conditions, fmt.Sprintf(
			"id IN (SELECT team_id FROM team_members WHERE user_id = $%d)", argIdx))
		args = append(args, *filter.MemberID)
		argIdx++
	} else {
		conditions = append(conditions, "is_public")
	}
	if filter.Name != nil {
		conditions = append(conditions, fmt.Sprintf(`name ILIKE $%d ESCAPE '\'`, argIdx))
		args = append(args, "%"+likeEscaper.Replace(*filter.Name)+"%")
		argIdx++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM teams %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting teams: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	dataQuery := fmt.Sprintf(`SELECT %s
		FROM teams
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, Columns, whereClause, argIdx, argIdx+1)
	args = append(args, filter.Limit, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	defer rows.Close()

	teams := []Team{}
	for rows.Next() {
		t, err := ScanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning team row: %w", err)
		}
		teams = append(teams, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating team rows: %w", err)
	}

	return &ListResult{
		Teams: teams,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}, nil
}

// ListMembers returns the memberships of an active team, highest role first.
func (r *PostgresRepository) ListMembers(ctx context.Context, teamID uuid.UUID) ([]Member, error) {
	if _, err := r.GetByID(ctx, teamID); err != nil {
		return nil, err
	}

	query := `
		SELECT m.team_id, m.user_id, u.name, m.role, m.joined_at
		FROM team_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.team_id = $1
		ORDER BY CASE m.role
			WHEN 'creator' THEN 0 WHEN 'owner' THEN 1 WHEN 'admin' THEN 2 ELSE 3
		END, m.joined_at ASC`

	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		m, err := ScanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating member rows: %w", err)
	}

	return members, nil
}
