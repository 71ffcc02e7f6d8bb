// Package entitlement decides which matching features a subscription tier may
// see. Restriction is an expected outcome, so every decision is returned as
// data (or a typed upgrade error for the write path), never as a generic
// failure.
package entitlement

import (
	"errors"
	"fmt"
	"strings"
)

// ScoreRestricted replaces a match score the viewer's tier may not see.
// A zero score is a legitimate low match, so "0%" cannot serve here.
const ScoreRestricted = "—"

// UpgradeMessage is shown alongside restricted recommendation lists.
const UpgradeMessage = "upgrade your plan to see personalized recommendations"

// ErrUpgradeRequired rejects a write the viewer's tier does not include.
var ErrUpgradeRequired = errors.New("plan upgrade required")

// PlanTier is the ordinal subscription level of an applicant account.
// Missing or unauthenticated actors resolve to TierFree, so every gate fails
// closed.
type PlanTier int

const (
	TierFree PlanTier = iota
	TierStandard
	TierPremium
)

// ParseTier maps a stored plan name onto a tier. Unknown names are an error;
// callers decide whether to fall back to TierFree.
func ParseTier(name string) (PlanTier, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "free", "":
		return TierFree, nil
	case "standard":
		return TierStandard, nil
	case "premium":
		return TierPremium, nil
	default:
		return TierFree, fmt.Errorf("unknown plan tier %q", name)
	}
}

func (t PlanTier) String() string {
	switch t {
	case TierStandard:
		return "standard"
	case TierPremium:
		return "premium"
	default:
		return "free"
	}
}

// CanSeeMatchingScore reports whether match percentages may be shown.
// Premium only; below that the score renders as ScoreRestricted.
func (t PlanTier) CanSeeMatchingScore() bool { return t >= TierPremium }

// CanSeeRecommendations reports whether ranked recommendation lists may be
// returned. Standard and above; below that the list comes back empty with a
// restricted flag, never partially populated.
func (t PlanTier) CanSeeRecommendations() bool { return t >= TierStandard }

// CanApplyToOpportunity reports whether the viewer may create or edit an
// application. Standard and above.
func (t PlanTier) CanApplyToOpportunity() bool { return t >= TierStandard }

// RequireApply converts a failed apply gate into the typed upgrade error the
// boundary renders as an upgrade prompt instead of a generic 403.
func (t PlanTier) RequireApply() error {
	if t.CanApplyToOpportunity() {
		return nil
	}
	return fmt.Errorf("%w: applying requires the standard plan, current tier is %s", ErrUpgradeRequired, t)
}

// ScoreLabel renders a computed percentage label for the given tier,
// substituting the restricted sentinel when the tier may not see scores.
func (t PlanTier) ScoreLabel(label string) string {
	if t.CanSeeMatchingScore() {
		return label
	}
	return ScoreRestricted
}
