package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestUpAppliesPendingMigrations(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("0001_core.up.sql", "create table widgets(id text primary key);")
	write("0002_extra.up.sql", "alter table widgets add column note text;")

	mock.ExpectExec("create table if not exists soundoff_schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists soundoff_schema_seeds").
		WillReturnResult(sqlmock.NewResult(0, 0))

	// 0001 is already applied; only 0002 should run.
	mock.ExpectQuery("select name from soundoff_schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_core.up.sql"))

	mock.ExpectBegin()
	mock.ExpectExec("alter table widgets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into soundoff_schema_migrations").
		WithArgs("0002_extra.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := NewManager(db, dir, "")
	if err := m.Up(context.Background()); err != nil {
		t.Fatalf("up: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`
		insert into competitions(id, name) values ('c1', 'semi; colon');
		insert into competitions(id, name) values ('c2', 'plain');
	`)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
}

func TestListScriptsOrdersAndFilters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	scripts, err := listScripts(dir, ".up.sql")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(scripts) != 2 || scripts[0].name != "0001_a.up.sql" || scripts[1].name != "0002_b.up.sql" {
		t.Fatalf("unexpected scripts: %+v", scripts)
	}

	// Missing directory is not an error.
	scripts, err = listScripts(filepath.Join(dir, "nope"), ".sql")
	if err != nil || scripts != nil {
		t.Fatalf("expected empty result, got %v %v", scripts, err)
	}
}
