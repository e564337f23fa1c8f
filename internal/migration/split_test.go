package migration_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/neomorfeo/pluginiq/internal/migration"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		name string
		sql  string
		want []string
	}{
		{
			name: "semicolon inside string literal",
			sql:  `INSERT INTO t (s) VALUES ('a;b');`,
			want: []string{`INSERT INTO t (s) VALUES ('a;b')`},
		},
		{
			name: "create table with commas and parens",
			sql:  `CREATE TABLE foo (id INT, bar TEXT);`,
			want: []string{`CREATE TABLE foo (id INT, bar TEXT)`},
		},
		{
			name: "trailing line comment",
			sql:  "CREATE TABLE a (id INT);\n-- done\n",
			want: []string{`CREATE TABLE a (id INT)`},
		},
		{
			name: "two statements",
			sql:  "CREATE TABLE a (id INT);\nCREATE TABLE b (id INT);",
			want: []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"},
		},
		{
			name: "missing final terminator",
			sql:  "DELETE FROM a;\nDELETE FROM b",
			want: []string{"DELETE FROM a", "DELETE FROM b"},
		},
		{
			name: "double quote does not close single quote",
			sql:  `INSERT INTO t VALUES ('say "hi;"'); SELECT 1;`,
			want: []string{`INSERT INTO t VALUES ('say "hi;"')`, "SELECT 1"},
		},
		{
			name: "apostrophe inside double quotes",
			sql:  `SELECT "it's;fine"; SELECT 2;`,
			want: []string{`SELECT "it's;fine"`, "SELECT 2"},
		},
		{
			name: "backtick identifiers",
			sql:  "SELECT `a;b` FROM t;",
			want: []string{"SELECT `a;b` FROM t"},
		},
		{
			name: "escaped single quote",
			sql:  `INSERT INTO t VALUES ('it''s; ok');`,
			want: []string{`INSERT INTO t VALUES ('it''s; ok')`},
		},
		{
			name: "semicolon in line comment",
			sql:  "SELECT 1; -- not; a statement\nSELECT 2;",
			want: []string{"SELECT 1", "SELECT 2"},
		},
		{
			name: "dashes inside string are not a comment",
			sql:  `INSERT INTO t VALUES ('--x;');`,
			want: []string{`INSERT INTO t VALUES ('--x;')`},
		},
		{
			name: "block comment",
			sql:  "/* header; */ SELECT 1; /* trailing */",
			want: []string{"SELECT 1"},
		},
		{
			name: "block comment separates words",
			sql:  "DROP TABLE/*old*/posts;",
			want: []string{"DROP TABLE posts"},
		},
		{
			name: "multi-line create table",
			sql: `CREATE TABLE IF NOT EXISTS posts (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL, -- headline; shown in lists
  CHECK (length(title) > 0)
);`,
			want: []string{"CREATE TABLE IF NOT EXISTS posts (\n  id TEXT PRIMARY KEY,\n  title TEXT NOT NULL, \n  CHECK (length(title) > 0)\n)"},
		},
		{
			name: "only comments and whitespace",
			sql:  "  -- nothing\n\n;;  ",
			want: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, migration.Split(tc.sql))
		})
	}
}

func TestSplit_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "n")
		want := make([]string, n)
		for i := range want {
			literal := rapid.StringMatching(`[a-z;() -]{0,12}`).Draw(t, fmt.Sprintf("literal%d", i))
			want[i] = fmt.Sprintf("INSERT INTO t (id, s) VALUES (%d, '%s')", i, literal)
		}

		got := migration.Split(strings.Join(want, ";\n") + ";\n-- end\n")

		if len(got) != n {
			t.Fatalf("got %d statements, want %d: %q", len(got), n, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("statement %d = %q, want %q", i, got[i], want[i])
			}
		}
	})
}
