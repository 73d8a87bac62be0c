package rowmap_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spectro-orm/spectro/pk"
	"github.com/spectro-orm/spectro/relation"
	"github.com/spectro-orm/spectro/rowmap"
	"github.com/spectro-orm/spectro/schema"
)

type mappedUser struct {
	ID    uuid.UUID
	Name  string
	Email string
	Age   *int64
	Posts relation.Lazy[[]string]
}

func userDescriptor(t *testing.T) *schema.Descriptor {
	t.Helper()
	d, err := schema.New("RowmapUser", "rowmap_users", "ID", pk.UUID).
		Column("Name", "string").
		Column("Email", "string").
		Column("Age", "int64", schema.Nullable()).
		Relationship("Posts", schema.HasMany, "RowmapPost").
		Build()
	require.NoError(t, err)
	return d
}

func TestMapScalarColumnsAndPointerNullable(t *testing.T) {
	t.Parallel()
	d := userDescriptor(t)
	id := uuid.New()

	row := rowmap.Row{
		"id":    id,
		"name":  []byte("ann"), // drivers commonly surface text as []byte
		"email": "ann@example.com",
		"age":   int64(30),
	}

	u, err := rowmap.Map[mappedUser](row, d, nil)
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "ann", u.Name)
	assert.Equal(t, "ann@example.com", u.Email)
	require.NotNil(t, u.Age)
	assert.Equal(t, int64(30), *u.Age)
	assert.Equal(t, relation.NotLoaded, u.Posts.State())
}

func TestMapNullableColumnNilLeavesPointerNil(t *testing.T) {
	t.Parallel()
	d := userDescriptor(t)

	row := rowmap.Row{
		"id":    uuid.New(),
		"name":  "bob",
		"email": "bob@example.com",
		"age":   nil,
	}

	u, err := rowmap.Map[mappedUser](row, d, nil)
	require.NoError(t, err)
	assert.Nil(t, u.Age)
}

func TestMapMissingColumnIsError(t *testing.T) {
	t.Parallel()
	d := userDescriptor(t)

	row := rowmap.Row{"id": uuid.New(), "name": "bob", "email": "bob@example.com"}
	_, err := rowmap.Map[mappedUser](row, d, nil)
	require.Error(t, err)
	var mismatch *rowmap.FieldMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestMapAttachesConventionalLoader(t *testing.T) {
	t.Parallel()
	d := userDescriptor(t)
	id := uuid.New()

	var capturedParentPK any
	factory := rowmap.LoaderFactory(func(rel schema.Relationship, parentPK any) func() (any, error) {
		capturedParentPK = parentPK
		return func() (any, error) {
			return []string{"post-1", "post-2"}, nil
		}
	})

	row := rowmap.Row{"id": id, "name": "ann", "email": "ann@example.com", "age": int64(22)}
	u, err := rowmap.Map[mappedUser](row, d, factory)
	require.NoError(t, err)

	assert.Equal(t, id, capturedParentPK)
	posts, err := u.Posts.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"post-1", "post-2"}, posts)
}
