package migrations

import (
	"errors"
	"strings"
	"testing"
)

func TestLoad_Embedded(t *testing.T) {
	pg, err := load(PostgresFS, "postgres")
	if err != nil {
		t.Fatalf("load postgres: %v", err)
	}
	if len(pg) == 0 {
		t.Fatal("no postgres migrations embedded")
	}
	for _, table := range []string{"genome_records", "trade_records", "generation_stats"} {
		if !strings.Contains(pg[0].sql, table) {
			t.Errorf("postgres schema missing table %s", table)
		}
	}

	ch, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		t.Fatalf("load clickhouse: %v", err)
	}
	stmts, err := splitStatements(ch[0].sql)
	if err != nil {
		t.Fatalf("split clickhouse: %v", err)
	}
	if len(stmts) != 1 || !strings.HasPrefix(stmts[0], "CREATE TABLE IF NOT EXISTS market_ticks") {
		t.Errorf("unexpected clickhouse statements: %q", stmts)
	}
}

func TestSplitStatements(t *testing.T) {
	sql := `
-- comment; with semicolon
CREATE TABLE a (x String DEFAULT 'it''s');

CREATE TABLE b (y UInt8);
`
	stmts, err := splitStatements(sql)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[1] != "CREATE TABLE b (y UInt8)" {
		t.Errorf("unexpected statement %q", stmts[1])
	}

	_, err = splitStatements(`INSERT INTO a VALUES ('x;y');`)
	if !errors.Is(err, ErrSemicolonInLiteral) {
		t.Errorf("expected ErrSemicolonInLiteral, got %v", err)
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/ticks")
	if err != nil || db != "ticks" {
		t.Errorf("databaseFromDSN = %q, %v", db, err)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("expected error for missing database")
	}
}
