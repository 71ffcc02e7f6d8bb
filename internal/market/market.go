// Package market defines the matching-side view of the marketplace domain:
// applicants, opportunity posts with their single specialization, and the
// application join record. Score computation never mutates any of these, so
// the types here are plain read-time projections.
package market

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/almamatch/almamatch/internal/vectormath"
)

var (
	// ErrNotFound reports a referenced applicant or post that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument reports malformed engine input such as an
	// out-of-range threshold.
	ErrInvalidArgument = errors.New("invalid argument")
)

// PostStatus is the lifecycle state of an opportunity post.
type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusPublished PostStatus = "published"
	StatusClosed    PostStatus = "closed"
	StatusArchived  PostStatus = "archived"
)

// SpecializationKind identifies the single specialization a post carries.
// The kinds are mutually exclusive, so a post has at most one comparable
// vector.
type SpecializationKind string

const (
	KindProgram     SpecializationKind = "program"
	KindScholarship SpecializationKind = "scholarship"
	KindJob         SpecializationKind = "job"
)

// DegreeLevel is the academic level a post targets or an applicant holds.
type DegreeLevel string

const (
	LevelBachelor DegreeLevel = "bachelor"
	LevelMaster   DegreeLevel = "master"
	LevelDoctoral DegreeLevel = "doctoral"
)

// Post is an opportunity published by an institution.
type Post struct {
	ID               uuid.UUID
	Title            string
	Status           PostStatus
	DegreeLevel      DegreeLevel
	DisciplineID     string
	SubdisciplineID  string
	Kind             SpecializationKind
	Embedding        vectormath.Embedding
	ApplicationCount int
	CreatedAt        time.Time
}

// ComparableVector returns the embedding of whichever specialization the post
// carries. It may be ungrounded when the post has not been embedded yet.
func (p *Post) ComparableVector() vectormath.Embedding { return p.Embedding }

// SameDisciplineFamily reports whether two posts belong to the same top-level
// discipline. Subdiscipline is display-only and does not affect eligibility.
func (p *Post) SameDisciplineFamily(other *Post) bool {
	return p.DisciplineID != "" && p.DisciplineID == other.DisciplineID
}

// Applicant is a student or researcher profile.
type Applicant struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Name            string
	Active          bool
	DeletedAt       *time.Time
	Embedding       vectormath.Embedding
	DisciplineID    string
	SubdisciplineID string
	DegreeLevel     DegreeLevel
	GPA             float64
}

// Eligible reports whether the applicant may appear in institution sourcing.
func (a *Applicant) Eligible() bool {
	return a.Active && a.DeletedAt == nil
}

// ApplicationStatus is the lifecycle state of an application.
type ApplicationStatus string

const (
	ApplicationApplied  ApplicationStatus = "applied"
	ApplicationInReview ApplicationStatus = "in_review"
	ApplicationInvited  ApplicationStatus = "invited"
	ApplicationRejected ApplicationStatus = "rejected"
	ApplicationAccepted ApplicationStatus = "accepted"
)

// Application joins an applicant to a post. Its existence makes the pair
// ineligible for sourcing suggestions.
type Application struct {
	ID          uuid.UUID
	ApplicantID uuid.UUID
	PostID      uuid.UUID
	Status      ApplicationStatus
	CreatedAt   time.Time
}
