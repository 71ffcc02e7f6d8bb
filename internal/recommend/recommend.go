// Package recommend produces the applicant-facing discovery flow: a ranked,
// size-bounded list of best-fit opportunity posts for one viewer, gated by
// the viewer's plan tier.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/almamatch/almamatch/internal/entitlement"
	"github.com/almamatch/almamatch/internal/market"
	"github.com/almamatch/almamatch/internal/vectormath"
)

const (
	// SimilarLimit caps similar-program discovery results.
	SimilarLimit = 9
	// DiscoveryLimit caps general listing results.
	DiscoveryLimit = 12

	// ungroundedRank sorts entities without an embedding below every real
	// percentage.
	ungroundedRank = -1
)

// Provider supplies the already-materialized entity sets the engine scores.
// Implemented by the store; fakes in tests.
type Provider interface {
	GetApplicant(ctx context.Context, id uuid.UUID) (*market.Applicant, error)
	GetPost(ctx context.Context, id uuid.UUID) (*market.Post, error)
	ListCandidatePosts(ctx context.Context) (*market.Posts, error)
	GetPlanTier(ctx context.Context, applicantID uuid.UUID) (entitlement.PlanTier, error)
}

// RankedPost is one recommendation item with its attached score label.
type RankedPost struct {
	Post  *market.Post
	Score string

	percent int
}

// Result is the recommendation response. When Restricted is set the item
// list is empty and UpgradeMessage explains why.
type Result struct {
	Restricted     bool
	UpgradeMessage string
	Items          []RankedPost
}

// Engine is stateless and safe for concurrent use.
type Engine struct {
	provider Provider
	logger   *zap.Logger
}

func NewEngine(provider Provider, logger *zap.Logger) *Engine {
	return &Engine{provider: provider, logger: logger}
}

// Recommend returns the ranked best-fit posts for the viewer. With a
// reference post it performs similar-program discovery scoped to the
// reference's discipline family and degree level; without one it performs
// general discovery. The plan gate is evaluated before any scoring work.
func (e *Engine) Recommend(ctx context.Context, viewerID uuid.UUID, referencePostID *uuid.UUID) (*Result, error) {
	tier, err := e.provider.GetPlanTier(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("resolving plan tier: %w", err)
	}

	if !tier.CanSeeRecommendations() {
		e.logger.Info("recommendations restricted",
			zap.String("viewer_id", viewerID.String()),
			zap.String("tier", tier.String()),
		)
		return &Result{
			Restricted:     true,
			UpgradeMessage: entitlement.UpgradeMessage,
			Items:          []RankedPost{},
		}, nil
	}

	limit := DiscoveryLimit
	var reference *market.Post
	if referencePostID != nil {
		reference, err = e.provider.GetPost(ctx, *referencePostID)
		if err != nil {
			return nil, fmt.Errorf("reference post %s: %w", referencePostID, err)
		}
		limit = SimilarLimit
	}

	viewerVec, err := e.viewerVector(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	posts, err := e.provider.ListCandidatePosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing candidate posts: %w", err)
	}

	filters := []Filter{
		newPublishedOnly(),
		newProgramsOnly(),
	}
	if reference != nil {
		filters = append(filters,
			newExcludeReference(reference),
			newReferenceEligibility(reference),
		)
	}

	posts, err = runFilters(e.logger, filters, posts)
	if err != nil {
		return nil, err
	}

	items, err := scoreAndRank(viewerVec, posts, tier)
	if err != nil {
		return nil, err
	}

	if len(items) > limit {
		items = items[:limit]
	}

	e.logger.Info("recommendations computed",
		zap.String("viewer_id", viewerID.String()),
		zap.Int("count", len(items)),
		zap.Bool("similar_mode", reference != nil),
	)

	return &Result{Items: items}, nil
}

// MatchScore returns the viewer's score label for a single post. The score
// gate short-circuits before any similarity is computed.
func (e *Engine) MatchScore(ctx context.Context, viewerID, postID uuid.UUID) (string, error) {
	tier, err := e.provider.GetPlanTier(ctx, viewerID)
	if err != nil {
		return "", fmt.Errorf("resolving plan tier: %w", err)
	}
	if !tier.CanSeeMatchingScore() {
		return entitlement.ScoreRestricted, nil
	}

	post, err := e.provider.GetPost(ctx, postID)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", postID, err)
	}

	viewerVec, err := e.viewerVector(ctx, viewerID)
	if err != nil {
		return "", err
	}

	postVec := post.ComparableVector()
	if !viewerVec.Grounded() || !postVec.Grounded() {
		return vectormath.ScoreUngrounded, nil
	}

	sim, err := vectormath.CosineSimilarity(viewerVec, postVec)
	if err != nil {
		return "", fmt.Errorf("scoring post %s: %w", postID, err)
	}
	return vectormath.MatchPercentage(sim), nil
}

// viewerVector resolves the viewer's embedding. A viewer without any profile
// is not an error here: it scores as ungrounded.
func (e *Engine) viewerVector(ctx context.Context, viewerID uuid.UUID) (vectormath.Embedding, error) {
	viewer, err := e.provider.GetApplicant(ctx, viewerID)
	if err != nil {
		if errors.Is(err, market.ErrNotFound) {
			return vectormath.Embedding{}, nil
		}
		return vectormath.Embedding{}, fmt.Errorf("resolving viewer %s: %w", viewerID, err)
	}
	return viewer.Embedding, nil
}

// scoreAndRank attaches a score to every surviving candidate and orders the
// list by percentage, then application count, then creation time, all
// descending, so the result is stable across calls on unchanged data.
func scoreAndRank(viewerVec vectormath.Embedding, posts *market.Posts, tier entitlement.PlanTier) ([]RankedPost, error) {
	items := make([]RankedPost, 0, posts.Len())
	for _, post := range posts.Items {
		item := RankedPost{Post: post, percent: ungroundedRank, Score: tier.ScoreLabel(vectormath.ScoreUngrounded)}

		postVec := post.ComparableVector()
		if viewerVec.Grounded() && postVec.Grounded() {
			sim, err := vectormath.CosineSimilarity(viewerVec, postVec)
			if err != nil {
				return nil, fmt.Errorf("scoring post %s: %w", post.ID, err)
			}
			item.percent = vectormath.MatchPercent(sim)
			item.Score = tier.ScoreLabel(vectormath.MatchPercentage(sim))
		}

		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].percent != items[j].percent {
			return items[i].percent > items[j].percent
		}
		if items[i].Post.ApplicationCount != items[j].Post.ApplicationCount {
			return items[i].Post.ApplicationCount > items[j].Post.ApplicationCount
		}
		return items[i].Post.CreatedAt.After(items[j].Post.CreatedAt)
	})

	return items, nil
}
