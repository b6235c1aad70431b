package engine

import (
	"errors"
	"regexp"
	"strings"
)

// literalTracker tracks whether a scanner position is inside a string
// literal or quoted identifier, per the single-pass scanner design note:
// a position is "inside a literal" when an odd number of unescaped quote
// characters precede it, with doubled-quote ('' or "") treated as escape.
type literalTracker struct {
	inSingle, inDouble bool
	skipNext           bool // next character is the second half of an escaped pair
}

// feed advances the tracker by one character at s[i] and reports whether
// that character was itself "inside a literal" (true for the quote
// characters that open and close a literal, and for everything between
// them).
func (t *literalTracker) feed(s string, i int) bool {
	if t.skipNext {
		t.skipNext = false
		return true // second half of an escaped pair
	}
	wasInLiteral := t.inSingle || t.inDouble
	c := s[i]
	switch c {
	case '\'':
		if t.inDouble {
			return wasInLiteral
		}
		if t.inSingle && i+1 < len(s) && s[i+1] == '\'' {
			t.skipNext = true
			return true // first half of an escaped '' pair
		}
		t.inSingle = !t.inSingle
		return true // the quote character itself belongs to the literal
	case '"':
		if t.inSingle {
			return wasInLiteral
		}
		if t.inDouble && i+1 < len(s) && s[i+1] == '"' {
			t.skipNext = true
			return true
		}
		t.inDouble = !t.inDouble
		return true
	default:
		return wasInLiteral
	}
}

var errPlaceholderZero = errors.New("$0 is not a valid placeholder index")

// ToSQLitePlaceholders rewrites $1, $2, ... to ? in order of appearance,
// outside string literals. $0 is a hard error. Gaps are permitted;
// parameters are looked up by 1-based index, so the returned order slice
// records which index each emitted ? corresponds to.
func ToSQLitePlaceholders(sql string) (rewritten string, order []int, err error) {
	var b strings.Builder
	tracker := &literalTracker{}
	i := 0
	for i < len(sql) {
		if !(tracker.inSingle || tracker.inDouble) && sql[i] == '$' && i+1 < len(sql) && sql[i+1] >= '0' && sql[i+1] <= '9' {
			j := i + 1
			for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
				j++
			}
			n := 0
			for _, ch := range sql[i+1 : j] {
				n = n*10 + int(ch-'0')
			}
			if n == 0 {
				return "", nil, &GatewayError{Code: CodeInvalidPlaceholder, Err: errPlaceholderZero}
			}
			order = append(order, n)
			b.WriteByte('?')
			i = j
			continue
		}
		tracker.feed(sql, i)
		b.WriteByte(sql[i])
		i++
	}
	return b.String(), order, nil
}

// dialectRule is one textual Postgres-to-SQLite rewrite, applied outside
// string literals only.
type dialectRule struct {
	pattern *regexp.Regexp
	replace string
}

var typeRules = []dialectRule{
	{regexp.MustCompile(`(?i)\bSMALLSERIAL\s+PRIMARY\s+KEY\b`), "INTEGER PRIMARY KEY AUTOINCREMENT"},
	{regexp.MustCompile(`(?i)\bBIGSERIAL\s+PRIMARY\s+KEY\b`), "INTEGER PRIMARY KEY AUTOINCREMENT"},
	{regexp.MustCompile(`(?i)\bSERIAL\s+PRIMARY\s+KEY\b`), "INTEGER PRIMARY KEY AUTOINCREMENT"},
	{regexp.MustCompile(`(?i)\bVARCHAR\s*\(\s*\d+\s*\)`), "TEXT"},
	{regexp.MustCompile(`(?i)\bCHAR\s*\(\s*\d+\s*\)`), "TEXT"},
	{regexp.MustCompile(`(?i)\bTIMESTAMP\s+WITH\s+TIME\s+ZONE\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bTIMESTAMPTZ\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bTIMESTAMP\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bDATE\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bTIME\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bUUID\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bJSONB\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bJSON\b`), "TEXT"},
	{regexp.MustCompile(`(?i)\bBYTEA\b`), "BLOB"},
	{regexp.MustCompile(`(?i)\bBOOLEAN\b`), "INTEGER"},
	{regexp.MustCompile(`(?i)\bBIGINT\b`), "INTEGER"},
	{regexp.MustCompile(`(?i)\bSMALLINT\b`), "INTEGER"},
	{regexp.MustCompile(`(?i)\bNUMERIC\s*\(\s*\d+\s*,\s*\d+\s*\)`), "REAL"},
	{regexp.MustCompile(`(?i)\bDECIMAL\s*\(\s*\d+\s*,\s*\d+\s*\)`), "REAL"},
	{regexp.MustCompile(`(?i)\bDOUBLE\s+PRECISION\b`), "REAL"},
}

var valueRules = []dialectRule{
	{regexp.MustCompile(`(?i)\bTRUE\b`), "1"},
	{regexp.MustCompile(`(?i)\bFALSE\b`), "0"},
}

var functionRules = []dialectRule{
	{regexp.MustCompile(`(?i)\bNOW\(\)`), "datetime('now')"},
	{regexp.MustCompile(`(?i)\bEXTRACT\s*\(\s*EPOCH\s+FROM\s+([^)]+)\)`), "strftime('%s', $1)"},
	{regexp.MustCompile(`(?i)\bgen_random_uuid\(\)`),
		"(lower(hex(randomblob(4)))||'-'||lower(hex(randomblob(2)))||'-'||lower(hex(randomblob(2)))||'-'||lower(hex(randomblob(2)))||'-'||lower(hex(randomblob(6))))"},
}

var operatorRules = []dialectRule{
	{regexp.MustCompile(`(?i)\bILIKE\b`), "LIKE"},
	{regexp.MustCompile(`~\s*'([^']*)'`), "LIKE '%$1%'"},
	{regexp.MustCompile(`([A-Za-z0-9_."\[\]]+)::([A-Za-z0-9_]+)`), "CAST($1 AS $2)"},
	{regexp.MustCompile(`(?i)=\s*ANY\s*\(\s*ARRAY\s*\[([^\]]*)\]\s*\)`), "IN ($1)"},
	{regexp.MustCompile(`(?i)\bFETCH\s+FIRST\s+(\d+)\s+ROWS\s+ONLY\b`), "LIMIT $1"},
	{regexp.MustCompile(`(?i)\bADD\s+COLUMN\s+IF\s+NOT\s+EXISTS\b`), "ADD COLUMN"},
}

var allRules = [][]dialectRule{typeRules, valueRules, functionRules, operatorRules}

// ToSQLite translates Postgres-like DDL/DML text to SQLite-like text,
// applying every rule outside string literals only. It is idempotent on
// already-translated SQL because each rule's replacement text never
// matches that same rule's pattern again.
func ToSQLite(sql string) string {
	for _, group := range allRules {
		sql = applyRulesOutsideLiterals(sql, group)
	}
	return sql
}

// applyRulesOutsideLiterals splits sql into literal and non-literal runs
// and applies every rule only to the non-literal runs, so string-literal
// contents are preserved verbatim.
func applyRulesOutsideLiterals(sql string, rules []dialectRule) string {
	segments := splitLiteralSegments(sql)
	for i, seg := range segments {
		if seg.literal {
			continue
		}
		text := seg.text
		for _, r := range rules {
			text = r.pattern.ReplaceAllString(text, r.replace)
		}
		segments[i].text = text
	}
	return joinSegments(segments)
}

type segment struct {
	text    string
	literal bool
}

// splitLiteralSegments partitions sql into alternating literal and
// non-literal runs using literalTracker, so callers can rewrite only the
// non-literal runs and reassemble the rest untouched.
func splitLiteralSegments(sql string) []segment {
	var segs []segment
	var cur strings.Builder
	curLiteral := false
	tracker := &literalTracker{}

	for i := 0; i < len(sql); i++ {
		charIsLiteral := tracker.feed(sql, i)
		if charIsLiteral != curLiteral && cur.Len() > 0 {
			segs = append(segs, segment{text: cur.String(), literal: curLiteral})
			cur.Reset()
		}
		curLiteral = charIsLiteral
		cur.WriteByte(sql[i])
	}
	if cur.Len() > 0 {
		segs = append(segs, segment{text: cur.String(), literal: curLiteral})
	}
	return segs
}

func joinSegments(segs []segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.text)
	}
	return b.String()
}
