package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamup/teamup/internal/application"
	"github.com/teamup/teamup/internal/invitation"
	"github.com/teamup/teamup/internal/policy"
	"github.com/teamup/teamup/internal/team"
)

const (
	invitationColumns = `i.id, i.team_id, t.name, i.inviter_id, i.invitee_id, i.message,
		       i.status, i.created_at, i.responded_at`
	applicationColumns = `a.id, a.team_id, t.name, a.applicant_id, a.message, a.status,
		       a.created_at, a.updated_at, a.reviewed_at, a.reviewed_by`
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InTx runs fn in a read-committed transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

// View runs fn in a read-only transaction.
func (s *PostgresStore) View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}
	return pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (p *pgTx) queryTeam(ctx context.Context, query string, id uuid.UUID) (*team.Team, error) {
	t, err := team.ScanTeam(p.tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying team: %w", err)
	}
	return t, nil
}

func (p *pgTx) LockTeam(ctx context.Context, teamID uuid.UUID) (*team.Team, error) {
	return p.queryTeam(ctx, `SELECT `+team.Columns+` FROM teams WHERE id = $1 FOR UPDATE`, teamID)
}

func (p *pgTx) GetTeam(ctx context.Context, teamID uuid.UUID) (*team.Team, error) {
	return p.queryTeam(ctx, `SELECT `+team.Columns+` FROM teams WHERE id = $1`, teamID)
}

func (p *pgTx) UpdateTeam(ctx context.Context, teamID uuid.UUID, fields team.UpdateFields, at time.Time) (*team.Team, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	if fields.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *fields.Name)
		argIdx++
	}
	if fields.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argIdx))
		args = append(args, *fields.Description)
		argIdx++
	}
	if fields.IsPublic != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_public = $%d", argIdx))
		args = append(args, *fields.IsPublic)
		argIdx++
	}
	if fields.PostalCode != nil {
		setClauses = append(setClauses, fmt.Sprintf("postal_code = $%d", argIdx))
		args = append(args, *fields.PostalCode)
		argIdx++
	}
	if fields.ClearMaxMembers {
		setClauses = append(setClauses, "max_members = NULL")
	} else if fields.MaxMembers != nil {
		setClauses = append(setClauses, fmt.Sprintf("max_members = $%d", argIdx))
		args = append(args, *fields.MaxMembers)
		argIdx++
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argIdx))
	args = append(args, at)
	argIdx++

	args = append(args, teamID)

	query := fmt.Sprintf(`
		UPDATE teams
		SET %s
		WHERE id = $%d AND archived_at IS NULL
		RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, team.Columns)

	t, err := team.ScanTeam(p.tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, team.ErrTeamNotFound
		}
		return nil, err
	}
	return t, nil
}

func (p *pgTx) ArchiveTeam(ctx context.Context, teamID uuid.UUID, at time.Time) error {
	result, err := p.tx.Exec(ctx, `
		UPDATE teams
		SET archived_at = $1, updated_at = $1
		WHERE id = $2 AND archived_at IS NULL`, at, teamID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return team.ErrTeamNotFound
	}
	return nil
}

func (p *pgTx) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := p.tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND revoked_at IS NULL)", userID).Scan(&exists)
	return exists, err
}

func (p *pgTx) GetMembership(ctx context.Context, teamID, userID uuid.UUID) (*team.Member, error) {
	m, err := team.ScanMember(p.tx.QueryRow(ctx, `
		SELECT m.team_id, m.user_id, u.name, m.role, m.joined_at
		FROM team_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.team_id = $1 AND m.user_id = $2`, teamID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (p *pgTx) CountMembers(ctx context.Context, teamID uuid.UUID) (int, error) {
	var n int
	err := p.tx.QueryRow(ctx, "SELECT COUNT(*) FROM team_members WHERE team_id = $1", teamID).Scan(&n)
	return n, err
}

func (p *pgTx) CountRole(ctx context.Context, teamID uuid.UUID, role team.Role) (int, error) {
	var n int
	err := p.tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM team_members WHERE team_id = $1 AND role = $2",
		teamID, role.String()).Scan(&n)
	return n, err
}

func (p *pgTx) InsertMembership(ctx context.Context, m *team.Member) error {
	_, err := p.tx.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)`,
		m.TeamID, m.UserID, m.Role.String(), m.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return policy.Deny(policy.ReasonAlreadyMember)
		}
		return err
	}
	return nil
}

func (p *pgTx) DeleteMembership(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	result, err := p.tx.Exec(ctx,
		"DELETE FROM team_members WHERE team_id = $1 AND user_id = $2", teamID, userID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (p *pgTx) SetMemberRole(ctx context.Context, teamID, userID uuid.UUID, role team.Role) error {
	result, err := p.tx.Exec(ctx,
		"UPDATE team_members SET role = $1 WHERE team_id = $2 AND user_id = $3",
		role.String(), teamID, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return policy.Deny(policy.ReasonNotFound)
	}
	return nil
}

func (p *pgTx) ListManagedTeams(ctx context.Context, userID uuid.UUID) ([]ManagedTeam, error) {
	rows, err := p.tx.Query(ctx, `
		SELECT `+prefixColumns("t.", team.Columns)+`, m.role,
		       (SELECT COUNT(*) FROM team_members c WHERE c.team_id = t.id)
		FROM team_members m
		JOIN teams t ON t.id = m.team_id
		WHERE m.user_id = $1
		  AND m.role IN ('creator', 'owner', 'admin')
		  AND t.archived_at IS NULL
		ORDER BY t.name ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ManagedTeam{}
	for rows.Next() {
		var mt ManagedTeam
		var role string
		t := &mt.Team
		err := rows.Scan(
			&t.ID, &t.Name, &t.Description, &t.IsPublic, &t.MaxMembers, &t.PostalCode,
			&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &t.ArchivedAt,
			&role, &mt.MemberCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning managed team row: %w", err)
		}
		if mt.Role, err = team.ParseRole(role); err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, rows.Err()
}

// prefixColumns qualifies each column of a comma separated list with prefix.
func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = prefix + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}

func scanInvitation(row pgx.Row) (*invitation.Invitation, error) {
	var inv invitation.Invitation
	var status string
	err := row.Scan(
		&inv.ID, &inv.TeamID, &inv.TeamName, &inv.InviterID, &inv.InviteeID, &inv.Message,
		&status, &inv.CreatedAt, &inv.RespondedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Status = invitation.Status(status)
	return &inv, nil
}

func (p *pgTx) oneInvitation(ctx context.Context, query string, args ...any) (*invitation.Invitation, error) {
	inv, err := scanInvitation(p.tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying invitation: %w", err)
	}
	return inv, nil
}

func (p *pgTx) listInvitations(ctx context.Context, query string, args ...any) ([]invitation.Invitation, error) {
	rows, err := p.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	defer rows.Close()

	out := []invitation.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invitation row: %w", err)
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invitation rows: %w", err)
	}
	return out, nil
}

func (p *pgTx) GetInvitation(ctx context.Context, id uuid.UUID) (*invitation.Invitation, error) {
	return p.oneInvitation(ctx, `SELECT `+invitationColumns+`
		FROM team_invitations i
		JOIN teams t ON t.id = i.team_id
		WHERE i.id = $1`, id)
}

func (p *pgTx) PendingInvitation(ctx context.Context, teamID, inviteeID uuid.UUID) (*invitation.Invitation, error) {
	return p.oneInvitation(ctx, `SELECT `+invitationColumns+`
		FROM team_invitations i
		JOIN teams t ON t.id = i.team_id
		WHERE i.team_id = $1 AND i.invitee_id = $2 AND i.status = 'pending'`, teamID, inviteeID)
}

func (p *pgTx) InsertInvitation(ctx context.Context, inv *invitation.Invitation) error {
	err := p.tx.QueryRow(ctx, `
		INSERT INTO team_invitations (team_id, inviter_id, invitee_id, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		inv.TeamID, inv.InviterID, inv.InviteeID, inv.Message, string(inv.Status), inv.CreatedAt,
	).Scan(&inv.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return policy.Deny(policy.ReasonInvitationPending)
		}
		return err
	}
	return nil
}

func (p *pgTx) ResolveInvitation(ctx context.Context, id uuid.UUID, status invitation.Status, at time.Time) (bool, error) {
	result, err := p.tx.Exec(ctx, `
		UPDATE team_invitations
		SET status = $1, responded_at = $2
		WHERE id = $3 AND status = 'pending'`, string(status), at, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (p *pgTx) ListInvitationsByInvitee(ctx context.Context, inviteeID uuid.UUID, status invitation.Status) ([]invitation.Invitation, error) {
	return p.listInvitations(ctx, `SELECT `+invitationColumns+`
		FROM team_invitations i
		JOIN teams t ON t.id = i.team_id
		WHERE i.invitee_id = $1 AND i.status = $2 AND t.archived_at IS NULL
		ORDER BY i.created_at DESC`, inviteeID, string(status))
}

func (p *pgTx) ListInvitationsByTeam(ctx context.Context, teamID uuid.UUID) ([]invitation.Invitation, error) {
	return p.listInvitations(ctx, `SELECT `+invitationColumns+`
		FROM team_invitations i
		JOIN teams t ON t.id = i.team_id
		WHERE i.team_id = $1
		ORDER BY i.created_at DESC`, teamID)
}

func scanApplication(row pgx.Row) (*application.Application, error) {
	var app application.Application
	var status string
	err := row.Scan(
		&app.ID, &app.TeamID, &app.TeamName, &app.ApplicantID, &app.Message, &status,
		&app.CreatedAt, &app.UpdatedAt, &app.ReviewedAt, &app.ReviewedBy,
	)
	if err != nil {
		return nil, err
	}
	app.Status = application.Status(status)
	return &app, nil
}

func (p *pgTx) oneApplication(ctx context.Context, query string, args ...any) (*application.Application, error) {
	app, err := scanApplication(p.tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying application: %w", err)
	}
	return app, nil
}

func (p *pgTx) listApplications(ctx context.Context, query string, args ...any) ([]application.Application, error) {
	rows, err := p.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	defer rows.Close()

	out := []application.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning application row: %w", err)
		}
		out = append(out, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating application rows: %w", err)
	}
	return out, nil
}

func (p *pgTx) GetApplication(ctx context.Context, id uuid.UUID) (*application.Application, error) {
	return p.oneApplication(ctx, `SELECT `+applicationColumns+`
		FROM team_applications a
		JOIN teams t ON t.id = a.team_id
		WHERE a.id = $1`, id)
}

func (p *pgTx) PendingApplication(ctx context.Context, teamID, applicantID uuid.UUID) (*application.Application, error) {
	return p.oneApplication(ctx, `SELECT `+applicationColumns+`
		FROM team_applications a
		JOIN teams t ON t.id = a.team_id
		WHERE a.team_id = $1 AND a.applicant_id = $2 AND a.status = 'pending'`, teamID, applicantID)
}

func (p *pgTx) InsertApplication(ctx context.Context, app *application.Application) error {
	err := p.tx.QueryRow(ctx, `
		INSERT INTO team_applications (team_id, applicant_id, message, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		app.TeamID, app.ApplicantID, app.Message, string(app.Status), app.CreatedAt, app.UpdatedAt,
	).Scan(&app.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return policy.Deny(policy.ReasonApplicationPending)
		}
		return err
	}
	return nil
}

func (p *pgTx) ResolveApplication(ctx context.Context, id uuid.UUID, status application.Status, reviewerID uuid.UUID, at time.Time) (bool, error) {
	result, err := p.tx.Exec(ctx, `
		UPDATE team_applications
		SET status = $1, reviewed_by = $2, reviewed_at = $3, updated_at = $3
		WHERE id = $4 AND status = 'pending'`, string(status), reviewerID, at, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (p *pgTx) DeletePendingApplication(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := p.tx.Exec(ctx,
		"DELETE FROM team_applications WHERE id = $1 AND status = 'pending'", id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (p *pgTx) ListApplicationsByTeam(ctx context.Context, teamID uuid.UUID) ([]application.Application, error) {
	return p.listApplications(ctx, `SELECT `+applicationColumns+`
		FROM team_applications a
		JOIN teams t ON t.id = a.team_id
		WHERE a.team_id = $1
		ORDER BY a.created_at DESC`, teamID)
}

func (p *pgTx) ListApplicationsByApplicant(ctx context.Context, applicantID uuid.UUID) ([]application.Application, error) {
	return p.listApplications(ctx, `SELECT `+applicationColumns+`
		FROM team_applications a
		JOIN teams t ON t.id = a.team_id
		WHERE a.applicant_id = $1 AND t.archived_at IS NULL
		ORDER BY a.created_at DESC`, applicantID)
}
