// Package migrate discovers, parses, applies, and rolls back SQL migration
// files tracked in a schema_migrations table (spec.md §4.9, §6).
package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	atlas "ariga.io/atlas/sql/migrate"

	spectro "github.com/spectro-orm/spectro"
)

const (
	upMarker   = "-- migrate:up"
	downMarker = "-- migrate:down"
)

var fileNamePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.sql$`)

// File is one discovered, parsed migration file (spec.md §6 "migration
// files").
type File struct {
	Version   string
	Name      string
	Path      string
	UpStmts   []string
	DownStmts []string
}

// Discover scans dir for files named "<version>_<name>.sql", parses each,
// and returns them sorted ascending by version (spec.md §4.9 "discovery").
// Version must be a purely numeric Unix timestamp, 10-13 digits; spec.md
// §9 Open Question (b) fixes this as the single canonical scheme and
// rejects the inconsistent 14-digit YYYYMMDDHHMMSS form some migration
// tools use instead.
func Discover(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, spectro.WrapError(spectro.KindMigrationFailed, "reading migration directory "+dir, err)
	}

	files := make([]File, 0, len(entries))
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".sql") {
			continue
		}
		f, err := parseFile(filepath.Join(dir, ent.Name()), ent.Name())
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	sort.Slice(files, func(i, j int) bool {
		a, b := files[i].Version, files[j].Version
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	if err := checkUniqueVersions(files); err != nil {
		return nil, err
	}
	return files, nil
}

// checkUniqueVersions enforces spec.md §4.9's invariant "version values
// are unique".
func checkUniqueVersions(files []File) error {
	seen := make(map[string]string, len(files))
	for _, f := range files {
		if prev, ok := seen[f.Version]; ok {
			return spectro.NewError(spectro.KindMigrationVersionConflict,
				fmt.Sprintf("version %q used by both %q and %q", f.Version, prev, f.Path))
		}
		seen[f.Version] = f.Path
	}
	return nil
}

func parseFile(path, baseName string) (File, error) {
	m := fileNamePattern.FindStringSubmatch(baseName)
	if m == nil {
		return File{}, spectro.NewError(spectro.KindInvalidMigrationFile,
			fmt.Sprintf("%q does not match <version>_<name>.sql", baseName))
	}
	version, name := m[1], m[2]
	if len(version) < 10 || len(version) > 13 {
		return File{}, spectro.NewError(spectro.KindInvalidMigrationFile,
			fmt.Sprintf("%q: version must be a 10-13 digit Unix timestamp, not a 14-digit YYYYMMDDHHMMSS-style value", baseName))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, spectro.WrapError(spectro.KindMigrationFailed, "reading migration file "+path, err)
	}
	up, down, err := splitSections(string(raw))
	if err != nil {
		return File{}, spectro.WrapError(spectro.KindInvalidMigrationFile, "parsing "+path, err)
	}
	upStmts, err := statementTexts(up)
	if err != nil {
		return File{}, spectro.WrapError(spectro.KindInvalidMigrationFile, "parsing up section of "+path, err)
	}
	downStmts, err := statementTexts(down)
	if err != nil {
		return File{}, spectro.WrapError(spectro.KindInvalidMigrationFile, "parsing down section of "+path, err)
	}

	return File{Version: version, Name: name, Path: path, UpStmts: upStmts, DownStmts: downStmts}, nil
}

// splitSections locates the "-- migrate:up" and "-- migrate:down" markers
// and returns the raw SQL text between them (spec.md §4.9 "parse": "split
// each file on the markers").
func splitSections(content string) (up, down string, err error) {
	upIdx := strings.Index(content, upMarker)
	if upIdx < 0 {
		return "", "", fmt.Errorf("missing %q marker", upMarker)
	}
	rest := content[upIdx+len(upMarker):]
	downIdx := strings.Index(rest, downMarker)
	if downIdx < 0 {
		return rest, "", nil
	}
	return rest[:downIdx], rest[downIdx+len(downMarker):], nil
}

// statementTexts delegates statement-boundary detection — dollar-quoted
// bodies, line comments, block comments — to atlas's own scanner (spec.md
// §4.9: "a parser that respects... dollar-quoted bodies... line
// comments... block comments") rather than hand-rolling a SQL tokenizer.
func statementTexts(section string) ([]string, error) {
	stmts, err := atlas.Stmts(section)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(stmts))
	for _, s := range stmts {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		out = append(out, text)
	}
	return out, nil
}
