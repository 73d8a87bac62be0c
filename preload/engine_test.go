package preload_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spectro-orm/spectro/pk"
	"github.com/spectro-orm/spectro/preload"
	"github.com/spectro-orm/spectro/query"
	"github.com/spectro-orm/spectro/relation"
	"github.com/spectro-orm/spectro/rowmap"
	"github.com/spectro-orm/spectro/schema"
)

type epUser struct {
	ID    uuid.UUID
	Name  string
	Posts relation.Lazy[[]*epPost]
}

type epPost struct {
	ID       uuid.UUID
	Title    string
	AuthorID uuid.UUID
	Author   relation.Lazy[*epUser]
}

type epTagUser struct {
	ID   uuid.UUID
	Name string
	Tags relation.Lazy[[]*epTag]
}

type epTag struct {
	ID   uuid.UUID
	Name string
}

type fakeQueryer struct {
	calls   int
	handler func(sqlText string, args []any) ([]rowmap.Row, error)
}

func (f *fakeQueryer) QueryContext(_ context.Context, sqlText string, args []any) ([]rowmap.Row, error) {
	f.calls++
	return f.handler(sqlText, args)
}

func registerEPSchemas(t *testing.T) (*schema.Descriptor, *schema.Descriptor) {
	t.Helper()

	userDesc, err := schema.New("EPUser", "ep_users", "ID", pk.UUID).
		Column("Name", "string").
		Relationship("Posts", schema.HasMany, "EPPost", schema.ForeignKey("author_id")).
		Build()
	require.NoError(t, err)
	require.NoError(t, schema.Register(userDesc))
	schema.RegisterEntityType[epUser]("EPUser")

	postDesc, err := schema.New("EPPost", "ep_posts", "ID", pk.UUID).
		Column("Title", "string").
		Column("AuthorID", "uuid.UUID", schema.ColumnName("author_id")).
		Relationship("Author", schema.BelongsTo, "EPUser", schema.ForeignKey("author_id")).
		Build()
	require.NoError(t, err)
	require.NoError(t, schema.Register(postDesc))
	schema.RegisterEntityType[epPost]("EPPost")

	return userDesc, postDesc
}

func registerEPTagSchemas(t *testing.T) *schema.Descriptor {
	t.Helper()

	userDesc, err := schema.New("EPTagUser", "ep_tag_users", "ID", pk.UUID).
		Column("Name", "string").
		Relationship("Tags", schema.ManyToMany, "EPTag", schema.JunctionTable("ep_tag_users_ep_tags")).
		Build()
	require.NoError(t, err)
	require.NoError(t, schema.Register(userDesc))
	schema.RegisterEntityType[epTagUser]("EPTagUser")

	tagDesc, err := schema.New("EPTag", "ep_tags", "ID", pk.UUID).
		Column("Name", "string").
		Build()
	require.NoError(t, err)
	require.NoError(t, schema.Register(tagDesc))
	schema.RegisterEntityType[epTag]("EPTag")

	return userDesc
}

// Preloading a has_many relationship across N parents issues exactly one
// batched query, never one per parent (spec.md §8 property 5, the N+1
// avoidance guarantee).
func TestLoadHasManyIsSingleBatchedQuery(t *testing.T) {
	userDesc, _ := registerEPSchemas(t)

	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	parents := []any{
		&epUser{ID: u1, Name: "ann"},
		&epUser{ID: u2, Name: "bob"},
		&epUser{ID: u3, Name: "cory"}, // has no posts
	}

	q := &fakeQueryer{handler: func(sqlText string, args []any) ([]rowmap.Row, error) {
		assert.Contains(t, sqlText, `FROM "ep_posts" WHERE "author_id" IN`)
		assert.Len(t, args, 3) // one per distinct parent key, regardless of whether it ends up with any children
		return []rowmap.Row{
			{"id": uuid.New(), "title": "p1", "author_id": u1},
			{"id": uuid.New(), "title": "p2", "author_id": u1},
			{"id": uuid.New(), "title": "p3", "author_id": u2},
		}, nil
	}}

	err := preload.Load(context.Background(), q, parents, userDesc, query.PreloadSpec{RelationName: "Posts"})
	require.NoError(t, err)
	assert.Equal(t, 1, q.calls)

	p1 := parents[0].(*epUser)
	posts, err := p1.Posts.Load()
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	p3 := parents[2].(*epUser)
	posts3, err := p3.Posts.Load()
	require.NoError(t, err)
	assert.Empty(t, posts3)
}

// Preloading a belongs_to relationship across N children issues exactly one
// batched query and leaves a dangling/null foreign key as a nil pointer.
func TestLoadBelongsToIsSingleBatchedQueryAndHandlesMissingParent(t *testing.T) {
	_, postDesc := registerEPSchemas(t)

	author1, missingAuthor := uuid.New(), uuid.New()
	posts := []any{
		&epPost{ID: uuid.New(), Title: "p1", AuthorID: author1},
		&epPost{ID: uuid.New(), Title: "p2", AuthorID: author1},
		&epPost{ID: uuid.New(), Title: "p3", AuthorID: missingAuthor},
	}

	q := &fakeQueryer{handler: func(sqlText string, args []any) ([]rowmap.Row, error) {
		assert.Contains(t, sqlText, `FROM "ep_users" WHERE "id" IN`)
		assert.Len(t, args, 2)
		return []rowmap.Row{
			{"id": author1, "name": "ann"},
			// missingAuthor intentionally has no matching row (dangling FK)
		}, nil
	}}

	err := preload.Load(context.Background(), q, posts, postDesc, query.PreloadSpec{RelationName: "Author"})
	require.NoError(t, err)
	assert.Equal(t, 1, q.calls)

	p1 := posts[0].(*epPost)
	author, err := p1.Author.Load()
	require.NoError(t, err)
	require.NotNil(t, author)
	assert.Equal(t, "ann", author.Name)

	p3 := posts[2].(*epPost)
	author3, err := p3.Author.Load()
	require.NoError(t, err)
	assert.Nil(t, author3)
}

// Preloading a many_to_many relationship across N parents issues exactly
// two queries — one against the junction table, one against the related
// table — never a single joined query and never one per parent (spec.md
// §4.7 step 3, §8 property 5's "1 + 2k" statement count for a many-to-many
// preload).
func TestLoadManyToManyIsTwoBatchedQueries(t *testing.T) {
	userDesc := registerEPTagSchemas(t)

	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	tagGo, tagRust := uuid.New(), uuid.New()
	parents := []any{
		&epTagUser{ID: u1, Name: "ann"},
		&epTagUser{ID: u2, Name: "bob"},
		&epTagUser{ID: u3, Name: "cory"}, // has no tags
	}

	q := &fakeQueryer{handler: func(sqlText string, args []any) ([]rowmap.Row, error) {
		switch {
		case containsAll(sqlText, `FROM "ep_tag_users_ep_tags"`, `"ep_tag_user_id" IN`):
			assert.Len(t, args, 3)
			return []rowmap.Row{
				{"ep_tag_user_id": u1, "ep_tag_id": tagGo},
				{"ep_tag_user_id": u1, "ep_tag_id": tagRust},
				{"ep_tag_user_id": u2, "ep_tag_id": tagGo},
			}, nil
		case containsAll(sqlText, `FROM "ep_tags" WHERE "id" IN`):
			assert.Len(t, args, 2) // deduplicated distinct child keys
			return []rowmap.Row{
				{"id": tagGo, "name": "go"},
				{"id": tagRust, "name": "rust"},
			}, nil
		default:
			t.Fatalf("unexpected query: %s", sqlText)
			return nil, nil
		}
	}}

	err := preload.Load(context.Background(), q, parents, userDesc, query.PreloadSpec{RelationName: "Tags"})
	require.NoError(t, err)
	assert.Equal(t, 2, q.calls)

	p1 := parents[0].(*epTagUser)
	tags1, err := p1.Tags.Load()
	require.NoError(t, err)
	assert.Len(t, tags1, 2)

	p2 := parents[1].(*epTagUser)
	tags2, err := p2.Tags.Load()
	require.NoError(t, err)
	assert.Len(t, tags2, 1)

	p3 := parents[2].(*epTagUser)
	tags3, err := p3.Tags.Load()
	require.NoError(t, err)
	assert.Empty(t, tags3)
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func TestLoadUnknownRelationshipIsError(t *testing.T) {
	userDesc, _ := registerEPSchemas(t)
	u := &epUser{ID: uuid.New()}

	err := preload.Load(context.Background(), &fakeQueryer{handler: func(string, []any) ([]rowmap.Row, error) {
		t.Fatal("should not query for an unknown relationship")
		return nil, nil
	}}, []any{u}, userDesc, query.PreloadSpec{RelationName: "Nope"})
	assert.Error(t, err)
}
