package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dreamware/vitessgw/internal/wireval"
)

// Parsed statement shapes recognized by the in-memory adapters. A full SQL
// parser is out of scope (the gateway's own minimal parser handles routing
// decisions); this layer only needs to recognize enough of INSERT/SELECT/
// CREATE TABLE to drive memTable.
var (
	createTableRe = regexp.MustCompile(`(?is)^\s*CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?["']?(\w+)["']?\s*\(([^;]*)\)\s*;?\s*$`)
	insertRe      = regexp.MustCompile(`(?is)^\s*INSERT\s+INTO\s+["']?(\w+)["']?\s*\(([^)]*)\)\s*VALUES\s*(.+?)\s*;?\s*$`)
	selectAllRe   = regexp.MustCompile(`(?is)^\s*SELECT\s+.+\s+FROM\s+["']?(\w+)["']?`)
)

type ddl struct {
	table       string
	pkColumn    string
	uniqueCols  []string
	notNullCols []string
}

// parseCreateTable extracts constraint metadata from a CREATE TABLE
// statement: which column is the primary key, which are UNIQUE, which are
// NOT NULL. Column type tokens are otherwise ignored (dialect translation
// has already normalized them by this point).
func parseCreateTable(sql string) (ddl, bool) {
	m := createTableRe.FindStringSubmatch(sql)
	if m == nil {
		return ddl{}, false
	}
	table := m[1]
	body := m[2]
	result := ddl{table: table}

	for _, colDef := range splitTopLevelCommas(body) {
		colDef = strings.TrimSpace(colDef)
		upper := strings.ToUpper(colDef)
		fields := strings.Fields(colDef)
		if len(fields) == 0 {
			continue
		}
		colName := strings.Trim(fields[0], `"'`)
		if strings.Contains(upper, "PRIMARY KEY") {
			result.pkColumn = colName
		}
		if strings.Contains(upper, "UNIQUE") {
			result.uniqueCols = append(result.uniqueCols, colName)
		}
		if strings.Contains(upper, "NOT NULL") {
			result.notNullCols = append(result.notNullCols, colName)
		}
	}
	return result, true
}

func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// parseInsert extracts the column list and the first row of literal
// values from an INSERT statement. Only literal values and ? / $n
// placeholders (already substituted by the caller via params) are
// supported.
func parseInsert(sql string, params []any) (table string, row Row, ok bool) {
	m := insertRe.FindStringSubmatch(sql)
	if m == nil {
		return "", nil, false
	}
	table = m[1]
	cols := splitTopLevelCommas(m[2])
	for i := range cols {
		cols[i] = strings.Trim(strings.TrimSpace(cols[i]), `"'`)
	}

	valuesBlock := strings.TrimSpace(m[3])
	valuesBlock = strings.TrimPrefix(valuesBlock, "(")
	valuesBlock = strings.TrimSuffix(valuesBlock, ")")
	valueTokens := splitTopLevelCommas(valuesBlock)

	row = Row{}
	paramIdx := 0
	for i, tok := range valueTokens {
		if i >= len(cols) {
			break
		}
		tok = strings.TrimSpace(tok)
		var v wireval.Value
		switch {
		case tok == "?" || (len(tok) > 0 && tok[0] == '$'):
			if paramIdx < len(params) {
				v = wireval.FromAny(params[paramIdx])
				paramIdx++
			}
		case strings.EqualFold(tok, "NULL"):
			v = wireval.Null
		case len(tok) >= 2 && tok[0] == '\'' && tok[len(tok)-1] == '\'':
			v = wireval.NewString(strings.ReplaceAll(tok[1:len(tok)-1], "''", "'"))
		default:
			if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
				v = wireval.NewInt64(n)
			} else if f, err := strconv.ParseFloat(tok, 64); err == nil {
				v = wireval.NewFloat64(f)
			} else {
				v = wireval.NewString(tok)
			}
		}
		row[cols[i]] = v
	}
	return table, row, true
}

// parseSelectTable extracts the target table name from a simple
// `SELECT ... FROM table` statement, ignoring WHERE/ORDER/GROUP clauses:
// filtering and aggregation happen at the gateway layer after rows are
// returned, not inside the adapter.
func parseSelectTable(sql string) (string, bool) {
	m := selectAllRe.FindStringSubmatch(sql)
	if m == nil {
		return "", false
	}
	return m[1], true
}

var errUnsupportedStatement = fmt.Errorf("engine: unsupported statement shape")
