package schema

import (
	"io/fs"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func migrationFiles(t *testing.T) []string {
	t.Helper()
	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names, "no .sql migration files embedded")
	return names
}

// TestMigrationsNotEmpty catches accidental empty files.
func TestMigrationsNotEmpty(t *testing.T) {
	for _, name := range migrationFiles(t) {
		content, err := fs.ReadFile(FS, name)
		require.NoError(t, err, "Failed to read migration file: %s", name)
		require.NotEmpty(t, strings.TrimSpace(string(content)), "Migration file is empty: %s", name)
	}
}

// TestMigrationFileNames ensures every file is NNNNNN_description.{up,down}.sql
// and that each version has both directions.
func TestMigrationFileNames(t *testing.T) {
	up := map[int]bool{}
	down := map[int]bool{}

	for _, name := range migrationFiles(t) {
		base := strings.TrimSuffix(name, ".sql")
		parts := strings.Split(base, "_")
		require.True(t, len(parts) >= 2, "File name %q does not match format NNNNNN_description.sql", name)

		version, err := strconv.Atoi(parts[0])
		require.NoError(t, err, "File name %q does not start with a number: %v", name, err)

		switch {
		case strings.HasSuffix(base, ".up"):
			up[version] = true
		case strings.HasSuffix(base, ".down"):
			down[version] = true
		default:
			t.Errorf("File name %q has no .up/.down direction", name)
		}
	}
	assert.Equal(t, up, down, "every up migration needs a matching down migration")
	for v := 1; v <= len(up); v++ {
		assert.True(t, up[v], "missing migration version %d", v)
	}
}

func TestUpMigrationsCreateHypertables(t *testing.T) {
	for _, name := range migrationFiles(t) {
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		content, err := fs.ReadFile(FS, name)
		require.NoError(t, err)
		assert.Contains(t, string(content), "create_hypertable", name)
	}
}
