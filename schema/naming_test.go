package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spectro-orm/spectro/schema"
)

func TestToSnakeCase(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Name":      "name",
		"FirstName": "first_name",
		"UserID":    "user_id",
		"IsActive":  "is_active",
	}
	for in, want := range cases {
		assert.Equal(t, want, schema.ToSnakeCase(in))
	}
}

func TestForeignKeyColumn(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "user_id", schema.ForeignKeyColumn("User"))
	assert.Equal(t, "order_item_id", schema.ForeignKeyColumn("OrderItem"))
}
