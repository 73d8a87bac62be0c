package schema

import (
	"unicode"

	"github.com/go-openapi/inflect"
)

// ToSnakeCase converts a Go field/schema name (e.g. "UserID", "FirstName")
// into its conventional Postgres column/table name ("user_id",
// "first_name"), per spec.md §3's column-name convention.
func ToSnakeCase(name string) string {
	// inflect.Underscore splits before every upper-case letter, so runs of
	// capitals ("ID", "EP") are first folded to title case ("Id", "Ep").
	r := []rune(name)
	out := make([]rune, len(r))
	for i, c := range r {
		out[i] = c
		if i > 0 && unicode.IsUpper(c) && unicode.IsUpper(r[i-1]) &&
			(i+1 == len(r) || !unicode.IsLower(r[i+1])) {
			out[i] = unicode.ToLower(c)
		}
	}
	return inflect.Underscore(string(out))
}

// ForeignKeyColumn returns the conventional foreign-key column name for a
// relationship from a child table back to parentSchema, per spec.md §4.3:
// snake_case(parent_schema) + "_id".
func ForeignKeyColumn(parentSchema string) string {
	return ToSnakeCase(parentSchema) + "_id"
}
