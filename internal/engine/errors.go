package engine

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Code is the stable error-taxonomy code symbol from the error handling
// design.
type Code string

const (
	CodeSyntaxError         Code = "SYNTAX_ERROR"
	CodeQueryError          Code = "QUERY_ERROR"
	CodeConstraintViolation Code = "CONSTRAINT_VIOLATION"
	CodeTypeError           Code = "TYPE_ERROR"
	CodeNotReady            Code = "NOT_READY"
	CodeAlreadyClosed       Code = "ALREADY_CLOSED"
	CodeTransactionError    Code = "TRANSACTION_ERROR"
	CodeTransactionExpired  Code = "TRANSACTION_EXPIRED"
	CodeTransactionNotFound Code = "TRANSACTION_NOT_FOUND"
	CodeReadOnlyTransaction Code = "READ_ONLY_TRANSACTION"
	CodeShardingKeyRequired Code = "SHARDING_KEY_REQUIRED"
	CodeUnknownVindex       Code = "UNKNOWN_VINDEX"
	CodeInvalidPlaceholder  Code = "INVALID_PLACEHOLDER"
	CodeMissingParam        Code = "MISSING_PARAM"
	CodeUnsupported         Code = "UNSUPPORTED"
	CodeConnectionFailed    Code = "CONNECTION_FAILED"
	CodeBatchError          Code = "BATCH_ERROR"
	CodeShardWriteError     Code = "SHARD_WRITE_ERROR"
	CodeTimeout             Code = "TIMEOUT"
	CodeTableNotFound       Code = "TABLE_NOT_FOUND"
	CodeKeyspaceNotFound    Code = "KEYSPACE_NOT_FOUND"
)

// ConstraintKind sub-types CONSTRAINT_VIOLATION.
type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintNotNull    ConstraintKind = "not-null"
	ConstraintCheck      ConstraintKind = "check"
	ConstraintForeignKey ConstraintKind = "foreign-key"
	ConstraintPrimaryKey ConstraintKind = "primary-key"
	ConstraintUnknown    ConstraintKind = "unknown"
)

// GatewayError is the stable, taxonomy-tagged error carried across the
// system boundary, generalizing the teacher's single sentinel-error idiom
// (storage.ErrKeyNotFound) to the full taxonomy.
type GatewayError struct {
	Code       Code
	Constraint ConstraintKind // only meaningful when Code == CodeConstraintViolation
	Shard      string
	SQLState   string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Shard != "" {
		return fmt.Sprintf("%s (shard %s): %v", e.Code, e.Shard, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// New wraps err under code, attaching shard when non-empty.
func New(code Code, shard string, err error) *GatewayError {
	return &GatewayError{Code: code, Shard: shard, Err: err}
}

// AsGatewayError unwraps to a *GatewayError, if any is in err's chain.
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// ClassifyPostgres turns a raw error returned by the in-memory Postgres
// adapter into a *GatewayError, recognizing *pgconn.PgError for realistic
// SQLSTATE-based constraint classification.
func ClassifyPostgres(shard string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		ge := &GatewayError{Shard: shard, SQLState: pgErr.Code, Err: err}
		switch pgErr.Code {
		case "23505":
			ge.Code, ge.Constraint = CodeConstraintViolation, ConstraintUnique
		case "23502":
			ge.Code, ge.Constraint = CodeConstraintViolation, ConstraintNotNull
		case "23503":
			ge.Code, ge.Constraint = CodeConstraintViolation, ConstraintForeignKey
		case "23514":
			ge.Code, ge.Constraint = CodeConstraintViolation, ConstraintCheck
		case "23000":
			ge.Code, ge.Constraint = CodeConstraintViolation, ConstraintPrimaryKey
		case "42601":
			ge.Code = CodeSyntaxError
		default:
			ge.Code = CodeQueryError
		}
		return ge
	}
	return &GatewayError{Code: CodeQueryError, Shard: shard, Err: err}
}

// ClassifySQLite turns a raw error returned by the in-memory SQLite
// adapter into a *GatewayError, recognizing sqlite3.Error's extended
// result codes.
func ClassifySQLite(shard string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		ge := &GatewayError{Shard: shard, Err: err}
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			ge.Code, ge.Constraint = CodeConstraintViolation, ConstraintUnique
		case sqlite3.ErrConstraintNotNull:
			ge.Code, ge.Constraint = CodeConstraintViolation, ConstraintNotNull
		case sqlite3.ErrConstraintForeignKey:
			ge.Code, ge.Constraint = CodeConstraintViolation, ConstraintForeignKey
		case sqlite3.ErrConstraintCheck:
			ge.Code, ge.Constraint = CodeConstraintViolation, ConstraintCheck
		default:
			if sqliteErr.Code == sqlite3.ErrConstraint {
				ge.Code, ge.Constraint = CodeConstraintViolation, ConstraintUnknown
			} else {
				ge.Code = CodeQueryError
			}
		}
		return ge
	}
	return &GatewayError{Code: CodeQueryError, Shard: shard, Err: err}
}
