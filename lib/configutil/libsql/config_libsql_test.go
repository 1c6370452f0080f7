package configlibsql

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenDBFile(t *testing.T) {
	config := Struct{File: filepath.Join(t.TempDir(), "test.db")}

	db, err := config.OpenDB("CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT);")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("INSERT INTO kv (k, v) VALUES ('a', 'b')")
	require.NoError(t, err)

	var v string
	err = db.QueryRow("SELECT v FROM kv WHERE k = 'a'").Scan(&v)
	require.NoError(t, err)
	require.Equal(t, "b", v)
}

func TestOpenDBFileIsReopenable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	config := Struct{File: path}
	schema := "CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT);"

	db, err := config.OpenDB(schema)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO kv (k, v) VALUES ('a', 'b')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = config.OpenDB(schema)
	require.NoError(t, err)
	defer db.Close()

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM kv").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestOpenDBRemoteUsesLibsqlDriver(t *testing.T) {
	// connections are lazy, opening must succeed without a live server
	config := Struct{Url: "libsql://example.turso.io", AuthToken: "token"}

	db, err := config.OpenDB("")
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestOpenDBRequiresPath(t *testing.T) {
	_, err := Struct{}.OpenDB("")
	require.Error(t, err)
}
