package store

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrationsOrdersAndSkipsBlank(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_media.sql": {Data: []byte("ALTER TABLE posts ADD COLUMN x TEXT;")},
		"migrations/002_index.sql": {Data: []byte("  CREATE INDEX i ON posts (id);\n")},
		"migrations/003_empty.sql": {Data: []byte("\n\n")},
		"migrations/README.md":     {Data: []byte("notes")},
		"migrations/001_posts.sql": {Data: []byte("CREATE TABLE posts (id TEXT);")},
	}

	got, err := loadMigrations(fsys)
	require.NoError(t, err)

	versions := make([]string, 0, len(got))
	for _, m := range got {
		versions = append(versions, m.version)
	}
	assert.Equal(t, []string{"001_posts", "002_index", "010_media"}, versions)
	assert.Equal(t, "CREATE INDEX i ON posts (id);", got[1].sql)
}

func TestEmbeddedMigrationsCreatePosts(t *testing.T) {
	got, err := loadMigrations(migrationFS)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "001_posts", got[0].version)
	assert.Contains(t, got[0].sql, "CREATE TABLE IF NOT EXISTS posts")
}
