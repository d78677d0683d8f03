package sync

import (
	"encoding/json"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// Decision is the conflict resolver's verdict for one mutation.
type Decision int

const (
	// DecisionAccept means the write may proceed as-is.
	DecisionAccept Decision = iota
	// DecisionReject means the mutation lost the race; the caller must log
	// a conflict entry and refresh the local copy to the server state.
	DecisionReject
	// DecisionMerge means the mutation touches a disjoint field set from
	// what changed server-side; MergedPayload can be retried at the
	// server's current version.
	DecisionMerge
)

// Resolution carries the decision plus its supporting data.
type Resolution struct {
	Decision       Decision
	CurrentVersion int64
	MergedPayload  json.RawMessage
}

// Evaluate decides the fate of a mutation given the authority's current
// record and the local base copy the mutation was edited against.
//
// Accept: expected version matches the server, or the mutation creates an
// id the server does not have. Merge: best-effort, only when the mutation's
// field set is provably disjoint from the fields the server changed since
// the base, which requires the base copy to still sit at the expected
// version.
// Everything else is Reject: last-write-wins by acceptance order, and the
// loser is surfaced, never silently dropped.
func Evaluate(m *model.Mutation, server, base *model.EntityRecord) Resolution {
	if server == nil {
		if m.Op == model.OpCreate {
			return Resolution{Decision: DecisionAccept}
		}
		return Resolution{Decision: DecisionReject}
	}

	if m.ExpectedVersion != nil && *m.ExpectedVersion == server.Version {
		return Resolution{Decision: DecisionAccept}
	}

	reject := Resolution{Decision: DecisionReject, CurrentVersion: server.Version}

	// Deletes and creates cannot be field-merged.
	if m.Op != model.OpUpdate {
		return reject
	}
	// Without the base at the expected version we cannot tell which fields
	// the server changed.
	if base == nil || m.ExpectedVersion == nil || base.Version != *m.ExpectedVersion {
		return reject
	}
	if server.Deleted || base.Deleted {
		return reject
	}

	mutFields, ok := jsonFields(m.Payload)
	if !ok {
		return reject
	}
	baseFields, ok := jsonFields(base.Payload)
	if !ok {
		return reject
	}
	serverFields, ok := jsonFields(server.Payload)
	if !ok {
		return reject
	}

	changed := changedFields(baseFields, serverFields)
	for f := range mutFields {
		if _, clash := changed[f]; clash {
			return reject
		}
	}

	merged := make(map[string]json.RawMessage, len(serverFields)+len(mutFields))
	for k, v := range serverFields {
		merged[k] = v
	}
	for k, v := range mutFields {
		merged[k] = v
	}
	payload, err := json.Marshal(merged)
	if err != nil {
		return reject
	}

	return Resolution{
		Decision:       DecisionMerge,
		CurrentVersion: server.Version,
		MergedPayload:  payload,
	}
}

// jsonFields decodes a JSON object into its top-level fields. Non-object
// payloads disqualify the merge path.
func jsonFields(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// changedFields returns the keys whose values differ between base and next,
// including keys added or removed.
func changedFields(base, next map[string]json.RawMessage) map[string]struct{} {
	changed := make(map[string]struct{})
	for k, v := range next {
		old, ok := base[k]
		if !ok || !jsonEqual(old, v) {
			changed[k] = struct{}{}
		}
	}
	for k := range base {
		if _, ok := next[k]; !ok {
			changed[k] = struct{}{}
		}
	}
	return changed
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	ab, err := json.Marshal(av)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(bv)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}
