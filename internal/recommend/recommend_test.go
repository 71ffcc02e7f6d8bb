package recommend

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/almamatch/almamatch/internal/entitlement"
	"github.com/almamatch/almamatch/internal/market"
	"github.com/almamatch/almamatch/internal/vectormath"
)

type fakeProvider struct {
	applicants map[uuid.UUID]*market.Applicant
	posts      map[uuid.UUID]*market.Post
	candidates []*market.Post
	tiers      map[uuid.UUID]entitlement.PlanTier
}

func (f *fakeProvider) GetApplicant(_ context.Context, id uuid.UUID) (*market.Applicant, error) {
	if a, ok := f.applicants[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("applicant %s: %w", id, market.ErrNotFound)
}

func (f *fakeProvider) GetPost(_ context.Context, id uuid.UUID) (*market.Post, error) {
	if p, ok := f.posts[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("post %s: %w", id, market.ErrNotFound)
}

func (f *fakeProvider) ListCandidatePosts(context.Context) (*market.Posts, error) {
	items := make([]*market.Post, len(f.candidates))
	copy(items, f.candidates)
	return &market.Posts{Items: items}, nil
}

func (f *fakeProvider) GetPlanTier(_ context.Context, id uuid.UUID) (entitlement.PlanTier, error) {
	return f.tiers[id], nil
}

func newProgram(discipline string, level market.DegreeLevel, vec []float64, apps int, createdAt time.Time) *market.Post {
	return &market.Post{
		ID:               uuid.New(),
		Status:           market.StatusPublished,
		DegreeLevel:      level,
		DisciplineID:     discipline,
		Kind:             market.KindProgram,
		Embedding:        vectormath.NewEmbedding(vec),
		ApplicationCount: apps,
		CreatedAt:        createdAt,
	}
}

func newViewer(vec []float64) *market.Applicant {
	return &market.Applicant{
		ID:        uuid.New(),
		Active:    true,
		Embedding: vectormath.NewEmbedding(vec),
	}
}

func newEngine(p *fakeProvider) *Engine {
	return NewEngine(p, zap.NewNop())
}

func TestRecommendRestrictedForFreeTier(t *testing.T) {
	viewer := newViewer([]float64{1, 0})
	provider := &fakeProvider{
		applicants: map[uuid.UUID]*market.Applicant{viewer.ID: viewer},
		candidates: []*market.Post{newProgram("cs", market.LevelMaster, []float64{1, 0}, 0, time.Now())},
		tiers:      map[uuid.UUID]entitlement.PlanTier{viewer.ID: entitlement.TierFree},
	}

	result, err := newEngine(provider).Recommend(context.Background(), viewer.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Restricted {
		t.Fatal("expected restricted result for free tier")
	}
	if len(result.Items) != 0 {
		t.Fatalf("restricted result must be empty, got %d items", len(result.Items))
	}
	if result.UpgradeMessage == "" {
		t.Fatal("restricted result must carry an upgrade message")
	}
}

func TestRecommendExcludesReferenceAndEnforcesEligibility(t *testing.T) {
	now := time.Now()
	reference := newProgram("cs", market.LevelMaster, []float64{1, 0}, 0, now)
	sameFamilySameLevel := newProgram("cs", market.LevelMaster, []float64{1, 0.1}, 0, now)
	sameFamilyOtherLevel := newProgram("cs", market.LevelDoctoral, []float64{1, 0}, 0, now)
	otherFamilySameLevel := newProgram("bio", market.LevelMaster, []float64{1, 0}, 0, now)

	viewer := newViewer([]float64{1, 0})
	provider := &fakeProvider{
		applicants: map[uuid.UUID]*market.Applicant{viewer.ID: viewer},
		posts:      map[uuid.UUID]*market.Post{reference.ID: reference},
		candidates: []*market.Post{reference, sameFamilySameLevel, sameFamilyOtherLevel, otherFamilySameLevel},
		tiers:      map[uuid.UUID]entitlement.PlanTier{viewer.ID: entitlement.TierPremium},
	}

	result, err := newEngine(provider).Recommend(context.Background(), viewer.ID, &reference.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected exactly 1 eligible post, got %d", len(result.Items))
	}
	if result.Items[0].Post.ID != sameFamilySameLevel.ID {
		t.Fatalf("unexpected survivor: %s", result.Items[0].Post.ID)
	}
	for _, item := range result.Items {
		if item.Post.ID == reference.ID {
			t.Fatal("reference post must never appear in its own results")
		}
		if item.Post.DegreeLevel != reference.DegreeLevel {
			t.Fatalf("degree level mismatch: %s", item.Post.DegreeLevel)
		}
	}
}

func TestRecommendDropsUnpublishedAndNonPrograms(t *testing.T) {
	now := time.Now()
	published := newProgram("cs", market.LevelMaster, []float64{1, 0}, 0, now)
	draft := newProgram("cs", market.LevelMaster, []float64{1, 0}, 0, now)
	draft.Status = market.StatusDraft
	scholarship := newProgram("cs", market.LevelMaster, []float64{1, 0}, 0, now)
	scholarship.Kind = market.KindScholarship

	viewer := newViewer([]float64{1, 0})
	provider := &fakeProvider{
		applicants: map[uuid.UUID]*market.Applicant{viewer.ID: viewer},
		candidates: []*market.Post{published, draft, scholarship},
		tiers:      map[uuid.UUID]entitlement.PlanTier{viewer.ID: entitlement.TierPremium},
	}

	result, err := newEngine(provider).Recommend(context.Background(), viewer.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Post.ID != published.ID {
		t.Fatalf("expected only the published program, got %d items", len(result.Items))
	}
}

func TestRecommendRankingAndTieBreaks(t *testing.T) {
	now := time.Now()
	best := newProgram("cs", market.LevelMaster, []float64{1, 0}, 0, now)
	popular := newProgram("cs", market.LevelMaster, []float64{1, 1}, 10, now.Add(-time.Hour))
	recent := newProgram("cs", market.LevelMaster, []float64{1, 1}, 3, now)
	older := newProgram("cs", market.LevelMaster, []float64{1, 1}, 3, now.Add(-2*time.Hour))
	ungrounded := newProgram("cs", market.LevelMaster, nil, 99, now)

	viewer := newViewer([]float64{1, 0})
	provider := &fakeProvider{
		applicants: map[uuid.UUID]*market.Applicant{viewer.ID: viewer},
		candidates: []*market.Post{older, ungrounded, recent, popular, best},
		tiers:      map[uuid.UUID]entitlement.PlanTier{viewer.ID: entitlement.TierPremium},
	}

	result, err := newEngine(provider).Recommend(context.Background(), viewer.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantOrder := []uuid.UUID{best.ID, popular.ID, recent.ID, older.ID, ungrounded.ID}
	if len(result.Items) != len(wantOrder) {
		t.Fatalf("expected %d items, got %d", len(wantOrder), len(result.Items))
	}
	for i, want := range wantOrder {
		if result.Items[i].Post.ID != want {
			t.Fatalf("position %d: got %s, want %s", i, result.Items[i].Post.ID, want)
		}
	}
	if result.Items[0].Score != "100%" {
		t.Fatalf("best match should read 100%%, got %q", result.Items[0].Score)
	}
	if last := result.Items[len(result.Items)-1]; last.Score != vectormath.ScoreUngrounded {
		t.Fatalf("ungrounded candidate should carry %q, got %q", vectormath.ScoreUngrounded, last.Score)
	}
}

func TestRecommendScoresHiddenBelowPremium(t *testing.T) {
	viewer := newViewer([]float64{1, 0})
	provider := &fakeProvider{
		applicants: map[uuid.UUID]*market.Applicant{viewer.ID: viewer},
		candidates: []*market.Post{newProgram("cs", market.LevelMaster, []float64{1, 0}, 0, time.Now())},
		tiers:      map[uuid.UUID]entitlement.PlanTier{viewer.ID: entitlement.TierStandard},
	}

	result, err := newEngine(provider).Recommend(context.Background(), viewer.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Restricted {
		t.Fatal("standard tier must see the list itself")
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}
	if result.Items[0].Score != entitlement.ScoreRestricted {
		t.Fatalf("standard tier must see %q, got %q", entitlement.ScoreRestricted, result.Items[0].Score)
	}
}

func TestRecommendCaps(t *testing.T) {
	now := time.Now()
	viewer := newViewer([]float64{1, 0})
	reference := newProgram("cs", market.LevelMaster, []float64{1, 0}, 0, now)

	provider := &fakeProvider{
		applicants: map[uuid.UUID]*market.Applicant{viewer.ID: viewer},
		posts:      map[uuid.UUID]*market.Post{reference.ID: reference},
		tiers:      map[uuid.UUID]entitlement.PlanTier{viewer.ID: entitlement.TierPremium},
	}
	for i := 0; i < 25; i++ {
		provider.candidates = append(provider.candidates,
			newProgram("cs", market.LevelMaster, []float64{1, float64(i)}, i, now))
	}

	discovery, err := newEngine(provider).Recommend(context.Background(), viewer.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(discovery.Items) != DiscoveryLimit {
		t.Fatalf("discovery cap: expected %d items, got %d", DiscoveryLimit, len(discovery.Items))
	}

	similar, err := newEngine(provider).Recommend(context.Background(), viewer.ID, &reference.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(similar.Items) != SimilarLimit {
		t.Fatalf("similar cap: expected %d items, got %d", SimilarLimit, len(similar.Items))
	}
}

func TestRecommendViewerWithoutProfile(t *testing.T) {
	viewerID := uuid.New()
	provider := &fakeProvider{
		candidates: []*market.Post{newProgram("cs", market.LevelMaster, []float64{1, 0}, 0, time.Now())},
		tiers:      map[uuid.UUID]entitlement.PlanTier{viewerID: entitlement.TierPremium},
	}

	result, err := newEngine(provider).Recommend(context.Background(), viewerID, nil)
	if err != nil {
		t.Fatalf("a never-onboarded viewer must not error: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}
	if result.Items[0].Score != vectormath.ScoreUngrounded {
		t.Fatalf("expected %q for an unembedded viewer, got %q", vectormath.ScoreUngrounded, result.Items[0].Score)
	}
}

func TestRecommendReferenceNotFound(t *testing.T) {
	viewer := newViewer([]float64{1, 0})
	provider := &fakeProvider{
		applicants: map[uuid.UUID]*market.Applicant{viewer.ID: viewer},
		tiers:      map[uuid.UUID]entitlement.PlanTier{viewer.ID: entitlement.TierPremium},
	}

	missing := uuid.New()
	_, err := newEngine(provider).Recommend(context.Background(), viewer.ID, &missing)
	if !errors.Is(err, market.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecommendNoCandidates(t *testing.T) {
	viewer := newViewer([]float64{1, 0})
	provider := &fakeProvider{
		applicants: map[uuid.UUID]*market.Applicant{viewer.ID: viewer},
		tiers:      map[uuid.UUID]entitlement.PlanTier{viewer.ID: entitlement.TierStandard},
	}

	result, err := newEngine(provider).Recommend(context.Background(), viewer.ID, nil)
	if err != nil {
		t.Fatalf("zero candidates must not error: %v", err)
	}
	if result.Restricted || len(result.Items) != 0 {
		t.Fatalf("expected empty unrestricted result, got %+v", result)
	}
}

func TestMatchScoreShortCircuitsBelowPremium(t *testing.T) {
	viewerID := uuid.New()
	provider := &fakeProvider{
		tiers: map[uuid.UUID]entitlement.PlanTier{viewerID: entitlement.TierStandard},
	}

	// No post registered: if the gate did not short-circuit this would be a
	// not-found error.
	score, err := newEngine(provider).MatchScore(context.Background(), viewerID, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != entitlement.ScoreRestricted {
		t.Fatalf("expected %q, got %q", entitlement.ScoreRestricted, score)
	}
}

func TestMatchScorePremium(t *testing.T) {
	viewer := newViewer([]float64{1, 0})
	post := newProgram("cs", market.LevelMaster, []float64{0, 1}, 0, time.Now())
	provider := &fakeProvider{
		applicants: map[uuid.UUID]*market.Applicant{viewer.ID: viewer},
		posts:      map[uuid.UUID]*market.Post{post.ID: post},
		tiers:      map[uuid.UUID]entitlement.PlanTier{viewer.ID: entitlement.TierPremium},
	}

	score, err := newEngine(provider).MatchScore(context.Background(), viewer.ID, post.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != "0%" {
		t.Fatalf("orthogonal vectors must read 0%%, got %q", score)
	}
}

func TestMatchScorePostNotFound(t *testing.T) {
	viewerID := uuid.New()
	provider := &fakeProvider{
		tiers: map[uuid.UUID]entitlement.PlanTier{viewerID: entitlement.TierPremium},
	}
	_, err := newEngine(provider).MatchScore(context.Background(), viewerID, uuid.New())
	if !errors.Is(err, market.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
