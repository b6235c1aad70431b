package wire

import "fmt"

// ValidateRequest checks that req carries the fields its Type requires,
// the Go-side analogue of the collaborator protocol's runtime type
// guards: a malformed envelope is rejected before it reaches the
// gateway/tablet logic that would otherwise fail later and less
// legibly.
func ValidateRequest(req Request) error {
	switch req.Type {
	case TypeQuery, TypeExecute, TypeShardQuery, TypeShardExecute:
		if req.SQL == "" {
			return fmt.Errorf("wire: %s request missing sql", req.Type)
		}
	case TypeBatch, TypeShardBatch:
		if len(req.Statements) == 0 {
			return fmt.Errorf("wire: %s request missing statements", req.Type)
		}
	case TypeCommit, TypeRollback:
		if req.TxID == "" {
			return fmt.Errorf("wire: %s request missing txId", req.Type)
		}
	case TypeBegin, TypeStatus, TypeHealth, TypeSchema, TypeVSchema:
		// header alone is a complete request for these types.
	default:
		return fmt.Errorf("wire: unrecognized request type %s", req.Type)
	}

	switch req.Type {
	case TypeShardQuery, TypeShardExecute, TypeShardBatch:
		if req.Shard == "" {
			return fmt.Errorf("wire: %s request missing shard", req.Type)
		}
	}
	return nil
}

// ValidateResponse checks that resp carries the body its Type requires.
func ValidateResponse(resp Response) error {
	switch resp.Type {
	case TypeResult:
		if resp.Result == nil {
			return fmt.Errorf("wire: result response missing result body")
		}
	case TypeError:
		if resp.Error == nil {
			return fmt.Errorf("wire: error response missing error body")
		}
	case TypeAck:
		// header alone is sufficient.
	case TypeBegin:
		if resp.TxID == "" {
			return fmt.Errorf("wire: begin response missing txId")
		}
	case TypeStatus:
		if resp.Status == nil {
			return fmt.Errorf("wire: status response missing status body")
		}
	case TypeHealth:
		if resp.Health == nil {
			return fmt.Errorf("wire: health response missing health body")
		}
	case TypeSchema:
		if resp.Tables == nil {
			return fmt.Errorf("wire: schema response missing tables")
		}
	case TypeVSchema:
		if resp.VSchema == nil {
			return fmt.Errorf("wire: vschema response missing vschema body")
		}
	default:
		return fmt.Errorf("wire: unrecognized response type %s", resp.Type)
	}
	return nil
}
