package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements_Simple(t *testing.T) {
	got := SplitStatements("CREATE TABLE a (id int); CREATE TABLE b (id int);")
	require.Len(t, got, 2)
	assert.Equal(t, "CREATE TABLE a (id int)", got[0])
	assert.Equal(t, "CREATE TABLE b (id int)", got[1])
}

func TestSplitStatements_DollarQuotedBody(t *testing.T) {
	script := `
CREATE TABLE t (id int);
CREATE OR REPLACE FUNCTION f() RETURNS integer AS $$
DECLARE
    n integer;
BEGIN
    DELETE FROM t WHERE id < 0;
    GET DIAGNOSTICS n = ROW_COUNT;
    RETURN n;
END;
$$ LANGUAGE plpgsql;
`
	got := SplitStatements(script)
	require.Len(t, got, 2, "semicolons inside the function body must not split")
	assert.Contains(t, got[1], "ROW_COUNT")
	assert.Contains(t, got[1], "LANGUAGE plpgsql")
}

func TestSplitStatements_TaggedDollarQuote(t *testing.T) {
	script := `CREATE FUNCTION g() RETURNS text AS $body$ SELECT 'a;b'; $body$ LANGUAGE sql; SELECT 1;`
	got := SplitStatements(script)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "$body$")
}

func TestSplitStatements_DollarBodyStartingWithDollar(t *testing.T) {
	// A body whose first character is '$' must not close against the
	// opener's own trailing dollars.
	got := SplitStatements(`CREATE FUNCTION h() RETURNS text AS $$$x$$ LANGUAGE sql; SELECT 1;`)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "$$$x$$")
	assert.Contains(t, got[0], "LANGUAGE sql")
	assert.Equal(t, "SELECT 1", got[1])
}

func TestSplitStatements_SemicolonInString(t *testing.T) {
	got := SplitStatements(`INSERT INTO t VALUES ('a;b'); SELECT 1;`)
	require.Len(t, got, 2)
	assert.Equal(t, `INSERT INTO t VALUES ('a;b')`, got[0])
}

func TestSplitStatements_EscapedQuote(t *testing.T) {
	got := SplitStatements(`INSERT INTO t VALUES ('it''s; fine'); SELECT 1;`)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "it''s; fine")
}

func TestSplitStatements_SemicolonInComment(t *testing.T) {
	script := "SELECT 1; -- trailing; comment\nSELECT 2;"
	got := SplitStatements(script)
	require.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(got[1], "-- trailing; comment"))
}

func TestSplitStatements_EmptyAndWhitespace(t *testing.T) {
	assert.Empty(t, SplitStatements(""))
	assert.Empty(t, SplitStatements("  \n\t ; ; "))
}

func TestSplitStatements_EmbeddedSchema(t *testing.T) {
	got := SplitStatements(schemaSQL)
	require.Len(t, got, 6)

	// The sweep function must arrive as one statement.
	last := got[len(got)-1]
	assert.Contains(t, last, "cleanup_expired_cache")
	assert.Contains(t, last, "LANGUAGE plpgsql")

	for _, stmt := range got[:len(got)-1] {
		assert.NotContains(t, stmt, "plpgsql")
	}
}
