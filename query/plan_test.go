package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spectro-orm/spectro/query"
)

type user struct{}

// Extending a plan along two independent branches never lets one branch
// observe the other's additions (spec.md §8 property 1: plan immutability).
func TestPlanBranchesAreIndependent(t *testing.T) {
	t.Parallel()

	base := query.New[user]("User").Where(query.Eq("Active", true))

	branchA := base.Where(query.Eq("Region", "eu")).Limit(10)
	branchB := base.OrderBy("Name", query.Asc).Offset(5)

	require.Equal(t, 2, countAnd(branchA.Cond))
	assert.Nil(t, base.LimitN)
	assert.Nil(t, base.OffsetN)
	assert.Empty(t, base.Order)

	assert.Equal(t, 1, countAnd(branchB.Cond))
	assert.Nil(t, branchB.LimitN)
	assert.NotNil(t, branchB.OffsetN)
	assert.Equal(t, 5, *branchB.OffsetN)

	assert.NotNil(t, branchA.LimitN)
	assert.Equal(t, 10, *branchA.LimitN)
	assert.Empty(t, branchA.Order)
}

func countAnd(c query.Condition) int {
	n := 0
	for {
		and, ok := c.(*query.AndNode)
		if !ok {
			return n
		}
		n++
		c = and.Left
	}
}

func TestSelectReplacesPreviousColumns(t *testing.T) {
	t.Parallel()

	p := query.New[user]("User").Select("Name", "Email").Select("ID")
	assert.Equal(t, []string{"ID"}, p.Cols)
}

func TestPreloadAndJoinAppend(t *testing.T) {
	t.Parallel()

	p := query.New[user]("User").
		Preload(query.PreloadSpec{RelationName: "Posts"}).
		Preload(query.PreloadSpec{RelationName: "Profile"}).
		Join(query.LeftJoin, "Team", "TeamID", "ID")

	require.Len(t, p.Preloads, 2)
	assert.Equal(t, "Posts", p.Preloads[0].RelationName)
	assert.Equal(t, "Profile", p.Preloads[1].RelationName)
	require.Len(t, p.Joins, 1)
	assert.Equal(t, query.LeftJoin, p.Joins[0].Kind)
}

func TestForUpdateMarksLock(t *testing.T) {
	t.Parallel()

	base := query.New[user]("User")
	locked := base.ForUpdate()
	assert.False(t, base.Locked)
	assert.True(t, locked.Locked)
}
