package recommend

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/almamatch/almamatch/internal/market"
)

// Filter is a single eligibility step applied to the candidate post list.
type Filter interface {
	Name() string
	Apply(posts *market.Posts) (*market.Posts, Step, error)
}

// Step describes the result of executing an eligibility step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// runFilters executes the supplied filters sequentially, logging per-step
// counts, and returns the surviving candidates.
func runFilters(logger *zap.Logger, filters []Filter, posts *market.Posts) (*market.Posts, error) {
	for _, step := range filters {
		next, info, err := step.Apply(posts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		if logger != nil {
			logger.Debug("eligibility step",
				zap.String("name", step.Name()),
				zap.Int("initial", info.Initial),
				zap.Int("dropped", info.Dropped),
				zap.Int("left", info.Left),
			)
		}

		posts = next
	}
	return posts, nil
}

type excludeReferenceFilter struct {
	reference *market.Post
}

// newExcludeReference removes the reference post from its own candidate list.
func newExcludeReference(reference *market.Post) Filter {
	return &excludeReferenceFilter{reference: reference}
}

func (f *excludeReferenceFilter) Name() string { return "exclude_reference" }

func (f *excludeReferenceFilter) Apply(posts *market.Posts) (*market.Posts, Step, error) {
	initial := posts.Len()
	excluded := posts.Exclude(market.PostIDField, []string{f.reference.ID.String()})
	return posts, Step{Initial: initial, Dropped: len(excluded), Left: posts.Len()}, nil
}

type publishedOnlyFilter struct{}

// newPublishedOnly keeps only posts in the published lifecycle state.
func newPublishedOnly() Filter {
	return &publishedOnlyFilter{}
}

func (f *publishedOnlyFilter) Name() string { return "published_only" }

func (f *publishedOnlyFilter) Apply(posts *market.Posts) (*market.Posts, Step, error) {
	initial := posts.Len()
	excluded := posts.Retain(func(p *market.Post) bool {
		return p.Status == market.StatusPublished
	})
	return posts, Step{Initial: initial, Dropped: len(excluded), Left: posts.Len()}, nil
}

type programsOnlyFilter struct{}

// newProgramsOnly keeps only program specializations. Scholarships and
// research jobs are surfaced through separate, unfiltered flows.
func newProgramsOnly() Filter {
	return &programsOnlyFilter{}
}

func (f *programsOnlyFilter) Name() string { return "programs_only" }

func (f *programsOnlyFilter) Apply(posts *market.Posts) (*market.Posts, Step, error) {
	initial := posts.Len()
	excluded := posts.Retain(func(p *market.Post) bool {
		return p.Kind == market.KindProgram
	})
	return posts, Step{Initial: initial, Dropped: len(excluded), Left: posts.Len()}, nil
}

type referenceEligibilityFilter struct {
	reference *market.Post
}

// newReferenceEligibility keeps posts sharing the reference's discipline
// family and carrying the identical degree level. Both conditions are
// conjunctive: matching only one excludes the post.
func newReferenceEligibility(reference *market.Post) Filter {
	return &referenceEligibilityFilter{reference: reference}
}

func (f *referenceEligibilityFilter) Name() string { return "reference_eligibility" }

func (f *referenceEligibilityFilter) Apply(posts *market.Posts) (*market.Posts, Step, error) {
	initial := posts.Len()
	excluded := posts.Retain(func(p *market.Post) bool {
		return p.SameDisciplineFamily(f.reference) && p.DegreeLevel == f.reference.DegreeLevel
	})
	return posts, Step{Initial: initial, Dropped: len(excluded), Left: posts.Len()}, nil
}
