// Package suggest produces the institution-facing sourcing flow: applicants
// whose fit for a post clears a minimum threshold and who have not yet
// applied.
package suggest

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/almamatch/almamatch/internal/market"
	"github.com/almamatch/almamatch/internal/vectormath"
)

const (
	// DefaultMinMatchScore is applied when the caller does not supply a
	// threshold.
	DefaultMinMatchScore = 80
	// Limit caps the suggestion list.
	Limit = 20
)

// Provider supplies the post and its pre-filtered eligible applicants
// (active, not soft-deleted, not already applied).
type Provider interface {
	GetPost(ctx context.Context, id uuid.UUID) (*market.Post, error)
	ListEligibleApplicants(ctx context.Context, postID uuid.UUID) ([]*market.Applicant, error)
}

// RankedApplicant is one sourcing suggestion with denormalized display
// fields attached via the embedded applicant.
type RankedApplicant struct {
	Applicant *market.Applicant
	Percent   int
	Score     string
}

// Engine is stateless and safe for concurrent use.
type Engine struct {
	provider Provider
	logger   *zap.Logger
}

func NewEngine(provider Provider, logger *zap.Logger) *Engine {
	return &Engine{provider: provider, logger: logger}
}

// Suggest returns applicants scoring at or above minMatchScore against the
// post's comparable vector, best first, capped at Limit. A post without an
// embedding yields an empty list: institutions cannot source candidates for
// an unembedded post.
func (e *Engine) Suggest(ctx context.Context, postID uuid.UUID, minMatchScore int) ([]RankedApplicant, error) {
	if minMatchScore < 0 || minMatchScore > 100 {
		return nil, fmt.Errorf("%w: min match score %d outside [0,100]", market.ErrInvalidArgument, minMatchScore)
	}

	post, err := e.provider.GetPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", postID, err)
	}

	postVec := post.ComparableVector()
	if !postVec.Grounded() {
		e.logger.Info("post has no embedding, nothing to suggest",
			zap.String("post_id", postID.String()),
		)
		return []RankedApplicant{}, nil
	}

	applicants, err := e.provider.ListEligibleApplicants(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("listing eligible applicants: %w", err)
	}

	ranked := make([]RankedApplicant, 0, len(applicants))
	for _, applicant := range applicants {
		// The provider pre-filters these; re-check so a stale row can
		// never leak into sourcing.
		if !applicant.Eligible() || !applicant.Embedding.Grounded() {
			continue
		}

		sim, err := vectormath.CosineSimilarity(postVec, applicant.Embedding)
		if err != nil {
			return nil, fmt.Errorf("scoring applicant %s: %w", applicant.ID, err)
		}

		percent := vectormath.MatchPercent(sim)
		if percent < minMatchScore {
			continue
		}

		ranked = append(ranked, RankedApplicant{
			Applicant: applicant,
			Percent:   percent,
			Score:     vectormath.MatchPercentage(sim),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Percent != ranked[j].Percent {
			return ranked[i].Percent > ranked[j].Percent
		}
		return ranked[i].Applicant.ID.String() < ranked[j].Applicant.ID.String()
	})

	if len(ranked) > Limit {
		ranked = ranked[:Limit]
	}

	e.logger.Info("suggestions computed",
		zap.String("post_id", postID.String()),
		zap.Int("threshold", minMatchScore),
		zap.Int("count", len(ranked)),
	)

	return ranked, nil
}
