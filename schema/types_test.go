package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widgetEntity struct {
	ID string
}

func TestRegisterAndLookupEntityType(t *testing.T) {
	defer resetTypes()

	RegisterEntityType[widgetEntity]("Widget")

	got, ok := EntityGoType("Widget")
	require.True(t, ok)
	assert.Equal(t, "widgetEntity", got.Name())

	assert.NotPanics(t, func() { MustEntityGoType("Widget") })
}

func TestMustEntityGoTypePanicsOnMissing(t *testing.T) {
	defer resetTypes()
	assert.Panics(t, func() { MustEntityGoType("Nope") })
}

func TestEntityGoTypeMissing(t *testing.T) {
	defer resetTypes()
	_, ok := EntityGoType("Nope")
	assert.False(t, ok)
}
