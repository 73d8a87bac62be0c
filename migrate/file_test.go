package migrate_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	spectro "github.com/spectro-orm/spectro"
	"github.com/spectro-orm/spectro/migrate"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDiscoverParsesUpAndDownSections(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1700000000_create_users.sql", `
-- migrate:up
CREATE TABLE "users" (
  id uuid PRIMARY KEY,
  name text NOT NULL
);
CREATE INDEX users_name_idx ON "users" (name);

-- migrate:down
DROP INDEX users_name_idx;
DROP TABLE "users";
`)

	files, err := migrate.Discover(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	f := files[0]
	require.Equal(t, "1700000000", f.Version)
	require.Equal(t, "create_users", f.Name)
	require.Len(t, f.UpStmts, 2)
	require.Contains(t, f.UpStmts[0], `CREATE TABLE "users"`)
	require.Contains(t, f.UpStmts[1], "CREATE INDEX")
	require.Len(t, f.DownStmts, 2)
	require.Contains(t, f.DownStmts[0], "DROP INDEX")
	require.Contains(t, f.DownStmts[1], `DROP TABLE "users"`)
}

func TestDiscoverRespectsDollarQuotedBodies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1700000001_add_trigger.sql", `
-- migrate:up
CREATE FUNCTION touch_updated_at() RETURNS trigger AS $$
BEGIN
  NEW.updated_at = now();
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;

-- migrate:down
DROP FUNCTION touch_updated_at();
`)

	files, err := migrate.Discover(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Len(t, files[0].UpStmts, 1)
	require.Contains(t, files[0].UpStmts[0], "$$ LANGUAGE plpgsql")
}

func TestDiscoverOrdersAscendingByVersion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1700000002_second.sql", "-- migrate:up\nSELECT 1;\n-- migrate:down\nSELECT 1;\n")
	writeFile(t, dir, "1700000000_first.sql", "-- migrate:up\nSELECT 1;\n-- migrate:down\nSELECT 1;\n")

	files, err := migrate.Discover(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "1700000000", files[0].Version)
	require.Equal(t, "1700000002", files[1].Version)
}

func TestDiscoverRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1700000000_first.sql", "-- migrate:up\nSELECT 1;\n-- migrate:down\nSELECT 1;\n")
	writeFile(t, dir, "1700000000_duplicate.sql", "-- migrate:up\nSELECT 1;\n-- migrate:down\nSELECT 1;\n")

	_, err := migrate.Discover(dir)
	require.Error(t, err)
	require.True(t, spectro.HasKind(err, spectro.KindMigrationVersionConflict))
}

func TestDiscoverRejectsMalformedFileName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "create_users.sql", "-- migrate:up\nSELECT 1;\n-- migrate:down\nSELECT 1;\n")

	_, err := migrate.Discover(dir)
	require.Error(t, err)
	require.True(t, spectro.HasKind(err, spectro.KindInvalidMigrationFile))
}

func TestDiscoverRejectsFourteenDigitVersion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "20231115120000_create_users.sql", "-- migrate:up\nSELECT 1;\n-- migrate:down\nSELECT 1;\n")

	_, err := migrate.Discover(dir)
	require.Error(t, err)
	require.True(t, spectro.HasKind(err, spectro.KindInvalidMigrationFile))
}
