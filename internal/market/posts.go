package market

import "github.com/google/uuid"

// Field selectors for Posts.Exclude.
const (
	PostIDField         = "ID"
	PostDisciplineField = "DisciplineID"
)

// Posts is a mutable working list of candidate posts flowing through the
// eligibility pipeline.
type Posts struct {
	Items []*Post
}

func (p *Posts) Len() int {
	return len(p.Items)
}

func (p *Posts) FindByID(id uuid.UUID) *Post {
	for _, post := range p.Items {
		if post.ID == id {
			return post
		}
	}
	return nil
}

// GetStringField returns the named selector field as a string.
func (p *Post) GetStringField(name string) string {
	switch name {
	case PostIDField:
		return p.ID.String()
	case PostDisciplineField:
		return p.DisciplineID
	default:
		return ""
	}
}

// Exclude removes posts whose selector field matches any target, returning
// the removed post ids.
func (p *Posts) Exclude(name string, targets []string) []string {
	drop := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		drop[target] = struct{}{}
	}
	return p.Retain(func(post *Post) bool {
		_, found := drop[post.GetStringField(name)]
		return !found
	})
}

// Retain keeps only posts for which keep returns true, returning the removed
// post ids. Order of the survivors is preserved.
func (p *Posts) Retain(keep func(*Post) bool) []string {
	var excluded []string
	kept := p.Items[:0]
	for _, post := range p.Items {
		if keep(post) {
			kept = append(kept, post)
			continue
		}
		excluded = append(excluded, post.ID.String())
	}
	p.Items = kept
	return excluded
}
