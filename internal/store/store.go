package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/almamatch/almamatch/internal/entitlement"
	"github.com/almamatch/almamatch/internal/market"
	"github.com/almamatch/almamatch/internal/vectormath"
)

// Store implements the providers consumed by the recommend and suggest
// engines on top of Postgres. It is transport-agnostic and safe for
// concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	plans  *PlanCache
	logger *zap.Logger
}

// New returns a configured Store. plans may be nil to disable tier caching.
func New(pool *pgxpool.Pool, plans *PlanCache, logger *zap.Logger) *Store {
	return &Store{pool: pool, plans: plans, logger: logger}
}

const applicantColumns = `
	a.id, a.user_id, a.name, a.active, a.deleted_at,
	COALESCE(a.embedding, '{}'::float8[]),
	a.discipline_id, COALESCE(a.subdiscipline_id, ''),
	a.degree_level, COALESCE(a.gpa, 0)`

func scanApplicant(row pgx.Row) (*market.Applicant, error) {
	var (
		a     market.Applicant
		vec   []float64
		level string
	)
	if err := row.Scan(
		&a.ID, &a.UserID, &a.Name, &a.Active, &a.DeletedAt,
		&vec, &a.DisciplineID, &a.SubdisciplineID, &level, &a.GPA,
	); err != nil {
		return nil, err
	}
	a.Embedding = vectormath.NewEmbedding(vec)
	a.DegreeLevel = market.DegreeLevel(level)
	return &a, nil
}

// GetApplicant returns one applicant by id.
func (s *Store) GetApplicant(ctx context.Context, id uuid.UUID) (*market.Applicant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+applicantColumns+` FROM applicants a WHERE a.id = $1`, id)

	applicant, err := scanApplicant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("applicant %s: %w", id, market.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getApplicant scan: %w", err)
	}
	return applicant, nil
}

const postColumns = `
	p.id, p.title, p.status, p.degree_level,
	p.discipline_id, COALESCE(p.subdiscipline_id, ''),
	p.specialization_kind, COALESCE(p.embedding, '{}'::float8[]),
	p.application_count, p.created_at`

func scanPost(row pgx.Row) (*market.Post, error) {
	var (
		p      market.Post
		status string
		level  string
		kind   string
		vec    []float64
	)
	if err := row.Scan(
		&p.ID, &p.Title, &status, &level,
		&p.DisciplineID, &p.SubdisciplineID,
		&kind, &vec, &p.ApplicationCount, &p.CreatedAt,
	); err != nil {
		return nil, err
	}
	p.Status = market.PostStatus(status)
	p.DegreeLevel = market.DegreeLevel(level)
	p.Kind = market.SpecializationKind(kind)
	p.Embedding = vectormath.NewEmbedding(vec)
	return &p, nil
}

// GetPost returns one opportunity post by id.
func (s *Store) GetPost(ctx context.Context, id uuid.UUID) (*market.Post, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+postColumns+` FROM posts p WHERE p.id = $1`, id)

	post, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("post %s: %w", id, market.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getPost scan: %w", err)
	}
	return post, nil
}

// ListCandidatePosts returns published posts with their denormalized
// application counts, newest first.
func (s *Store) ListCandidatePosts(ctx context.Context) (*market.Posts, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+postColumns+` FROM posts p
		 WHERE p.status = 'published'
		 ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listCandidatePosts query: %w", err)
	}
	defer rows.Close()

	posts := &market.Posts{Items: make([]*market.Post, 0)}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("listCandidatePosts scan: %w", err)
		}
		posts.Items = append(posts.Items, post)
	}
	return posts, rows.Err()
}

// ListEligibleApplicants returns applicants who are active, not soft-deleted,
// carry an embedding, and have not applied to the given post.
func (s *Store) ListEligibleApplicants(ctx context.Context, postID uuid.UUID) ([]*market.Applicant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+applicantColumns+` FROM applicants a
		 WHERE a.active
		   AND a.deleted_at IS NULL
		   AND a.embedding IS NOT NULL
		   AND NOT EXISTS (
		       SELECT 1 FROM applications ap
		       WHERE ap.applicant_id = a.id AND ap.post_id = $1
		   )`, postID)
	if err != nil {
		return nil, fmt.Errorf("listEligibleApplicants query: %w", err)
	}
	defer rows.Close()

	applicants := make([]*market.Applicant, 0)
	for rows.Next() {
		applicant, err := scanApplicant(rows)
		if err != nil {
			return nil, fmt.Errorf("listEligibleApplicants scan: %w", err)
		}
		applicants = append(applicants, applicant)
	}
	return applicants, rows.Err()
}

// GetPlanTier resolves the applicant's current plan tier. A missing or
// expired subscription resolves to the free tier so every gate fails closed.
func (s *Store) GetPlanTier(ctx context.Context, applicantID uuid.UUID) (entitlement.PlanTier, error) {
	if s.plans != nil {
		if tier, ok := s.plans.Get(ctx, applicantID); ok {
			return tier, nil
		}
	}

	var name string
	err := s.pool.QueryRow(ctx,
		`SELECT pl.name
		 FROM subscriptions sub
		 JOIN plans pl ON pl.id = sub.plan_id
		 JOIN applicants a ON a.user_id = sub.user_id
		 WHERE a.id = $1
		   AND sub.active
		   AND (sub.expires_at IS NULL OR sub.expires_at > now())
		 ORDER BY sub.created_at DESC
		 LIMIT 1`, applicantID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return entitlement.TierFree, nil
	}
	if err != nil {
		return entitlement.TierFree, fmt.Errorf("getPlanTier query: %w", err)
	}

	tier, err := entitlement.ParseTier(name)
	if err != nil {
		s.logger.Warn("unknown plan name in storage, treating as free",
			zap.String("plan", name),
			zap.String("applicant_id", applicantID.String()),
		)
		return entitlement.TierFree, nil
	}

	if s.plans != nil {
		s.plans.Set(ctx, applicantID, tier)
	}
	return tier, nil
}

// CreateApplication inserts the applicant→post join record. Duplicate
// applications are rejected as invalid input, not swallowed.
func (s *Store) CreateApplication(ctx context.Context, applicantID, postID uuid.UUID) (*market.Application, error) {
	var (
		app    market.Application
		status string
	)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO applications (applicant_id, post_id, status)
		 VALUES ($1, $2, 'applied')
		 ON CONFLICT (applicant_id, post_id) DO NOTHING
		 RETURNING id, applicant_id, post_id, status, created_at`,
		applicantID, postID,
	).Scan(&app.ID, &app.ApplicantID, &app.PostID, &status, &app.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: already applied to post %s", market.ErrInvalidArgument, postID)
	}
	if err != nil {
		return nil, fmt.Errorf("createApplication: %w", err)
	}
	app.Status = market.ApplicationStatus(status)
	return &app, nil
}

// RefreshApplicationCounts recomputes the denormalized per-post application
// counter that feeds the popularity tie-break.
func (s *Store) RefreshApplicationCounts(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE posts p SET application_count = sub.cnt
		 FROM (
		     SELECT post_id, COUNT(*) AS cnt
		     FROM applications
		     GROUP BY post_id
		 ) sub
		 WHERE sub.post_id = p.id
		   AND p.application_count <> sub.cnt`)
	if err != nil {
		return 0, fmt.Errorf("refreshApplicationCounts: %w", err)
	}
	return tag.RowsAffected(), nil
}
