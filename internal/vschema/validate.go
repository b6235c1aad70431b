package vschema

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/dreamware/vitessgw/internal/vindex"
)

// ErrorCode is a tagged validation error code, stable for callers that
// branch on it.
type ErrorCode string

const (
	MissingVindex        ErrorCode = "MISSING_VINDEX"
	MissingLookupTable   ErrorCode = "MISSING_LOOKUP_TABLE"
	MissingPrimaryVindex ErrorCode = "MISSING_PRIMARY_VINDEX"
	UnknownVindex        ErrorCode = "UNKNOWN_VINDEX"
	MissingSequence      ErrorCode = "MISSING_SEQUENCE"
	InvalidShardRange    ErrorCode = "INVALID_SHARD_RANGE"
	ShardRangeGap        ErrorCode = "SHARD_RANGE_GAP"
)

// ValidationError is one tagged finding from Validate.
type ValidationError struct {
	Code     ErrorCode
	Keyspace string
	Table    string
	Message  string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationResult is the outcome of Validate: valid is true iff Errors is
// empty. Warnings never affect validity.
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// Validate checks every invariant in the data model's VSchema section and
// reports tagged errors and warnings.
func Validate(vs *VSchema) ValidationResult {
	var errs, warns []ValidationError

	keyspaceNames := make([]string, 0, len(vs.Keyspaces))
	for name := range vs.Keyspaces {
		keyspaceNames = append(keyspaceNames, name)
	}
	slices.Sort(keyspaceNames)

	for _, ksName := range keyspaceNames {
		ks := vs.Keyspaces[ksName]

		if ks.Sharded && len(ks.Vindexes) == 0 {
			errs = append(errs, ValidationError{
				Code: MissingVindex, Keyspace: ksName,
				Message: fmt.Sprintf("sharded keyspace %q has no vindexes", ksName),
			})
		}

		for vname, def := range ks.Vindexes {
			if isLookupType(def.Type) && def.LookupTable == "" {
				errs = append(errs, ValidationError{
					Code: MissingLookupTable, Keyspace: ksName,
					Message: fmt.Sprintf("vindex %q in keyspace %q is a lookup vindex without lookupTable", vname, ksName),
				})
			}
		}

		tableNames := make([]string, 0, len(ks.Tables))
		for name := range ks.Tables {
			tableNames = append(tableNames, name)
		}
		slices.Sort(tableNames)

		for _, tname := range tableNames {
			table := ks.Tables[tname]

			if ks.Sharded && table.TableKind != TableReference && table.TableKind != TableSequence {
				if len(table.ColumnVindexes) == 0 {
					errs = append(errs, ValidationError{
						Code: MissingPrimaryVindex, Keyspace: ksName, Table: tname,
						Message: fmt.Sprintf("sharded ordinary table %q.%q has no column-vindexes", ksName, tname),
					})
				}
			}

			for i, cv := range table.ColumnVindexes {
				def, ok := ks.Vindexes[cv.Name]
				if !ok {
					errs = append(errs, ValidationError{
						Code: UnknownVindex, Keyspace: ksName, Table: tname,
						Message: fmt.Sprintf("table %q.%q references unknown vindex %q", ksName, tname, cv.Name),
					})
					continue
				}
				if i == 0 && !isUniqueType(def.Type) && table.TableKind == TableOrdinary {
					warns = append(warns, ValidationError{
						Code: "NON_UNIQUE_PRIMARY_VINDEX", Keyspace: ksName, Table: tname,
						Message: fmt.Sprintf("primary vindex %q of %q.%q is non-unique (scatter risk)", cv.Name, ksName, tname),
					})
				}
			}

			if table.AutoIncrement != nil {
				if !sequenceExists(vs, table.AutoIncrement.SequenceTableName) {
					errs = append(errs, ValidationError{
						Code: MissingSequence, Keyspace: ksName, Table: tname,
						Message: fmt.Sprintf("auto-increment of %q.%q names undeclared sequence %q", ksName, tname, table.AutoIncrement.SequenceTableName),
					})
				}
			}
		}

		if ks.Sharded && len(ks.Shards) > 0 {
			_, gaps, err := vindex.ValidateShardRanges(ks.Shards)
			if err != nil {
				errs = append(errs, ValidationError{
					Code: InvalidShardRange, Keyspace: ksName,
					Message: fmt.Sprintf("keyspace %q: %v", ksName, err),
				})
			}
			for _, gap := range gaps {
				warns = append(warns, ValidationError{
					Code: ShardRangeGap, Keyspace: ksName,
					Message: fmt.Sprintf("keyspace %q: %s", ksName, gap),
				})
			}
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}

func isLookupType(t string) bool {
	switch t {
	case "lookup", "lookup_unique", "lookup_hash":
		return true
	default:
		return false
	}
}

func isUniqueType(t string) bool {
	switch t {
	case "hash", "binary_md5", "consistent_hash", "range", "numeric", "lookup_unique", "lookup_hash":
		return true
	default:
		return false
	}
}

func sequenceExists(vs *VSchema, name string) bool {
	for _, ks := range vs.Keyspaces {
		if t, ok := ks.Tables[name]; ok && t.TableKind == TableSequence {
			return true
		}
	}
	return false
}
