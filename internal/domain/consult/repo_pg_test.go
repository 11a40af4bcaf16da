package consult

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// tableColumns extracts the column names of a CREATE TABLE statement
// from the schema file, so the tests below catch drift between the SQL
// the repositories run and the columns the migration actually creates.
func tableColumns(t *testing.T, table string) map[string]bool {
	t.Helper()

	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "001_init.sql"))
	if err != nil {
		t.Fatalf("reading schema: %v", err)
	}

	marker := "CREATE TABLE IF NOT EXISTS " + table + " ("
	start := strings.Index(string(schema), marker)
	if start < 0 {
		t.Fatalf("schema does not create table %s", table)
	}
	body := string(schema)[start+len(marker):]
	end := strings.Index(body, ");")
	if end < 0 {
		t.Fatalf("unterminated CREATE TABLE for %s", table)
	}

	cols := make(map[string]bool)
	for _, line := range strings.Split(body[:end], "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "PRIMARY", "UNIQUE", "FOREIGN", "CHECK", "CONSTRAINT":
			continue
		}
		cols[fields[0]] = true
	}
	return cols
}

func TestSchema_ConsultRequestColumns(t *testing.T) {
	cols := tableColumns(t, "consult_request")

	for _, col := range strings.Split(consultColumns, ",") {
		col = strings.TrimSpace(col)
		if !cols[col] {
			t.Errorf("repository selects consult_request.%s but the schema does not create it", col)
		}
	}
}

func TestSchema_ConsultNoteColumns(t *testing.T) {
	cols := tableColumns(t, "consult_note")

	// Columns written by Append and read by ListByConsult.
	for _, col := range []string{"id", "consult_id", "author_id", "category", "text", "recommendation", "created_at"} {
		if !cols[col] {
			t.Errorf("repository uses consult_note.%s but the schema does not create it", col)
		}
	}
}
