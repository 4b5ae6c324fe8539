package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"soundoff.org/internal/ids"
	"soundoff.org/internal/results"
)

// Store is the Postgres-backed resource store.
type Store struct {
	db *sql.DB
}

var _ results.Store = (*Store)(nil)

// Open connects to Postgres and tunes the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing pool; used by tests with sqlmock.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) GetResult(ctx context.Context, id string) (results.Result, error) {
	var r results.Result
	var orgID, notes sql.NullString
	err := s.db.QueryRowContext(ctx, `
		select id, competition_id, owner_id, organization_id, category,
		       placement, score, notes, verified, revision, created_at, updated_at
		from results where id=$1
	`, id).Scan(&r.ID, &r.CompetitionID, &r.OwnerID, &orgID, &r.Category,
		&r.Placement, &r.Score, &notes, &r.Verified, &r.Revision, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return results.Result{}, results.ErrNotFound
	}
	if err != nil {
		return results.Result{}, err
	}
	r.OrganizationID = orgID.String
	r.Notes = notes.String
	return r, nil
}

func (s *Store) GetCompetition(ctx context.Context, id string) (results.Competition, error) {
	var c results.Competition
	err := s.db.QueryRowContext(ctx, `
		select id, name, active, starts_at, ends_at, results_deadline
		from competitions where id=$1
	`, id).Scan(&c.ID, &c.Name, &c.Active, &c.StartsAt, &c.EndsAt, &c.ResultsDeadline)
	if errors.Is(err, sql.ErrNoRows) {
		return results.Competition{}, results.ErrNotFound
	}
	if err != nil {
		return results.Competition{}, err
	}
	return c, nil
}

func (s *Store) HasResult(ctx context.Context, competitionID, ownerID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from results where competition_id=$1 and owner_id=$2)
	`, competitionID, ownerID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) CreateResult(ctx context.Context, r results.Result) (results.Result, error) {
	if r.ID == "" {
		r.ID = ids.New()
	}
	now := time.Now().UTC()
	r.Revision = 1
	r.CreatedAt = now
	r.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into results(id, competition_id, owner_id, organization_id, category,
		                    placement, score, notes, verified, revision, created_at, updated_at)
		values ($1,$2,$3,nullif($4,''),$5,$6,$7,nullif($8,''),$9,$10,$11,$12)
	`, r.ID, r.CompetitionID, r.OwnerID, r.OrganizationID, r.Category,
		r.Placement, r.Score, r.Notes, r.Verified, r.Revision, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return results.Result{}, results.ErrDuplicate
		}
		return results.Result{}, err
	}
	return r, nil
}

// UpdateResult applies a conditional update: the row must still carry the
// expected revision, otherwise another writer won the race.
func (s *Store) UpdateResult(ctx context.Context, r results.Result, expectedRevision int64) (results.Result, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		update results
		set category=$1, placement=$2, score=$3, notes=nullif($4,''),
		    verified=$5, revision=revision+1, updated_at=$6
		where id=$7 and revision=$8
	`, r.Category, r.Placement, r.Score, r.Notes, r.Verified, now, r.ID, expectedRevision)
	if err != nil {
		return results.Result{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return results.Result{}, err
	}
	if affected == 0 {
		return results.Result{}, s.updateConflict(ctx, r.ID)
	}
	r.Revision = expectedRevision + 1
	r.UpdatedAt = now
	return r, nil
}

func (s *Store) DeleteResult(ctx context.Context, id string, expectedRevision int64) error {
	res, err := s.db.ExecContext(ctx, `
		delete from results where id=$1 and revision=$2
	`, id, expectedRevision)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.updateConflict(ctx, id)
	}
	return nil
}

// updateConflict distinguishes a vanished row from a lost revision race.
func (s *Store) updateConflict(ctx context.Context, id string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from results where id=$1)
	`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return results.ErrNotFound
	}
	return results.ErrRevisionConflict
}

func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == "23505"
	}
	return false
}
