package market

import (
	"testing"

	"github.com/google/uuid"
)

func testPosts() (*Posts, []uuid.UUID) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	return &Posts{Items: []*Post{
		{ID: ids[0], Status: StatusPublished, DisciplineID: "cs"},
		{ID: ids[1], Status: StatusDraft, DisciplineID: "cs"},
		{ID: ids[2], Status: StatusPublished, DisciplineID: "bio"},
	}}, ids
}

func TestPostsFindByID(t *testing.T) {
	posts, ids := testPosts()

	if got := posts.FindByID(ids[1]); got == nil || got.ID != ids[1] {
		t.Fatalf("expected post %s, got %v", ids[1], got)
	}
	if got := posts.FindByID(uuid.New()); got != nil {
		t.Fatalf("expected nil for unknown id, got %v", got)
	}
}

func TestPostsExclude(t *testing.T) {
	posts, ids := testPosts()

	removed := posts.Exclude(PostIDField, []string{ids[0].String()})
	if len(removed) != 1 || removed[0] != ids[0].String() {
		t.Fatalf("expected [%s] removed, got %v", ids[0], removed)
	}
	if posts.Len() != 2 {
		t.Fatalf("expected 2 posts left, got %d", posts.Len())
	}
	if posts.FindByID(ids[0]) != nil {
		t.Fatal("excluded post still present")
	}
}

func TestPostsRetainPreservesOrder(t *testing.T) {
	posts, ids := testPosts()

	removed := posts.Retain(func(p *Post) bool {
		return p.Status == StatusPublished
	})
	if len(removed) != 1 || removed[0] != ids[1].String() {
		t.Fatalf("expected draft removed, got %v", removed)
	}
	if posts.Len() != 2 {
		t.Fatalf("expected 2 posts left, got %d", posts.Len())
	}
	if posts.Items[0].ID != ids[0] || posts.Items[1].ID != ids[2] {
		t.Fatal("survivor order changed")
	}
}

func TestPostGetStringField(t *testing.T) {
	post := &Post{ID: uuid.New(), DisciplineID: "cs"}

	if got := post.GetStringField(PostIDField); got != post.ID.String() {
		t.Fatalf("expected id string, got %q", got)
	}
	if got := post.GetStringField(PostDisciplineField); got != "cs" {
		t.Fatalf("expected discipline, got %q", got)
	}
	if got := post.GetStringField("Unknown"); got != "" {
		t.Fatalf("expected empty string for unknown selector, got %q", got)
	}
}
