package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_SortsAndSkipsBlank(t *testing.T) {
	fsys := fstest.MapFS{
		"pg/002_b.sql":  {Data: []byte("CREATE INDEX b ON t (b);")},
		"pg/001_a.sql":  {Data: []byte("CREATE TABLE t (a INT);")},
		"pg/003_c.sql":  {Data: []byte("  \n")},
		"pg/readme.txt": {Data: []byte("ignored")},
		"other/9_x.sql": {Data: []byte("SELECT 1;")},
	}

	got, err := Load(fsys, "pg")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "001_a", got[0].Version)
	assert.Equal(t, "002_b", got[1].Version)
}

func TestEmbedded(t *testing.T) {
	pg, err := Postgres()
	require.NoError(t, err)
	require.NotEmpty(t, pg)
	assert.Equal(t, "001_entities", pg[0].Version)

	ch, err := ClickHouse()
	require.NoError(t, err)
	require.NotEmpty(t, ch)
	for _, m := range ch {
		assert.NotEmpty(t, SplitStatements(m.SQL), m.Version)
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "two statements",
			script: "CREATE TABLE a (x Int8);\nCREATE TABLE b (y Int8);\n",
			want:   []string{"CREATE TABLE a (x Int8)", "CREATE TABLE b (y Int8)"},
		},
		{
			name:   "comments dropped",
			script: "-- header; with semicolon\nSELECT 1; -- trailing\n",
			want:   []string{"SELECT 1"},
		},
		{
			name:   "semicolon in string",
			script: "INSERT INTO t VALUES ('a;b');SELECT 2",
			want:   []string{"INSERT INTO t VALUES ('a;b')", "SELECT 2"},
		},
		{
			name:   "escaped quote",
			script: "SELECT 'it''s; fine';",
			want:   []string{"SELECT 'it''s; fine'"},
		},
		{
			name:   "dashes in string",
			script: "SELECT '--not a comment';",
			want:   []string{"SELECT '--not a comment'"},
		},
		{
			name:   "empty",
			script: " ;\n-- only a comment\n",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(tt.script))
		})
	}
}
