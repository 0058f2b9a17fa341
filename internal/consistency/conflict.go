package consistency

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/MainListActivity/cuckoox-google-sub012/internal/errors"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/events"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/logging"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/observability"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/uuid"
)

// volatileFields are excluded from replica comparison; they change on every
// write and would report every record as conflicted.
var volatileFields = map[string]struct{}{
	"updated_at":    {},
	"updatedAt":     {},
	"created_at":    {},
	"createdAt":     {},
	"last_modified": {},
	"lastModified":  {},
	"_persisted_at": {},
}

// timestampPriority is the field-name order timestamp_wins probes when
// extracting a comparable timestamp from a snapshot.
var timestampPriority = []string{
	"updated_at", "updatedAt",
	"last_modified", "lastModified",
	"created_at", "createdAt",
}

// FieldPolicy resolves one conflicting field. field_level resolution applies
// the policy registered for the field name, falling back to
// DefaultFieldPolicy.
type FieldPolicy func(field string, local, remote interface{}) interface{}

// ConflictJournal persists resolved conflicts for user awareness.
type ConflictJournal interface {
	AppendConflictLog(entry *models.ConflictLog) error
}

// Manager is the consistency manager: schema validation, conflict
// detection/resolution, and grouped transactions with rollback.
type Manager struct {
	schemas *SchemaRegistry
	store   RecordStore
	journal ConflictJournal
	bus     *events.Bus

	mu            sync.Mutex
	fieldPolicies map[string]FieldPolicy
	conflicts     map[string]*models.DataConflict
	transactions  map[string]*models.Transaction
}

// NewManager wires a consistency manager. journal may be nil; resolved
// conflicts are then not journaled.
func NewManager(schemas *SchemaRegistry, store RecordStore, journal ConflictJournal, bus *events.Bus) *Manager {
	return &Manager{
		schemas:       schemas,
		store:         store,
		journal:       journal,
		bus:           bus,
		fieldPolicies: make(map[string]FieldPolicy),
		conflicts:     make(map[string]*models.DataConflict),
		transactions:  make(map[string]*models.Transaction),
	}
}

// RegisterFieldPolicy installs a per-field resolution policy used by the
// field_level strategy.
func (m *Manager) RegisterFieldPolicy(field string, policy FieldPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fieldPolicies[field] = policy
}

// DetectConflict diffs the local and remote snapshots of one record and
// returns nil when they agree on every non-volatile field. A detected
// conflict is retained until explicitly cleared and broadcast to observers.
func (m *Manager) DetectConflict(table, recordID string, local, remote models.Record) *models.DataConflict {
	fields := diffFields(local, remote)
	if len(fields) == 0 {
		return nil
	}

	conflict := &models.DataConflict{
		ID:             uuid.New(),
		Table:          table,
		RecordID:       recordID,
		LocalData:      local.Clone(),
		RemoteData:     remote.Clone(),
		ConflictFields: fields,
		DetectedAt:     time.Now(),
	}

	m.mu.Lock()
	m.conflicts[conflict.ID] = conflict
	m.mu.Unlock()

	observability.ConflictsDetected.WithLabelValues(table).Inc()
	logging.Info("Replica conflict detected", map[string]interface{}{
		"table":     table,
		"record_id": recordID,
		"fields":    strings.Join(fields, ","),
	})
	m.bus.Publish(events.ConflictDetected{Conflict: conflict})
	return conflict
}

// Conflict returns a retained conflict by id.
func (m *Manager) Conflict(id string) (*models.DataConflict, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conflict, ok := m.conflicts[id]
	return conflict, ok
}

// UnresolvedConflicts lists all retained conflicts not yet resolved.
func (m *Manager) UnresolvedConflicts() []*models.DataConflict {
	m.mu.Lock()
	defer m.mu.Unlock()
	var unresolved []*models.DataConflict
	for _, conflict := range m.conflicts {
		if !conflict.Resolved {
			unresolved = append(unresolved, conflict)
		}
	}
	return unresolved
}

// ClearConflict forgets a retained conflict.
func (m *Manager) ClearConflict(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conflicts, id)
}

// ResolveConflict applies a resolution strategy to a retained conflict.
// Every strategy is a pure function of the conflict's snapshots, so
// re-resolving with the same strategy yields the same result. The resolved
// conflict is journaled and broadcast; writing the resolved data back is the
// caller's responsibility so resolution stays side-effect-free.
func (m *Manager) ResolveConflict(conflictID string, strategy models.ResolutionStrategy, manualData models.Record) (*models.DataConflict, error) {
	m.mu.Lock()
	conflict, ok := m.conflicts[conflictID]
	m.mu.Unlock()
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound,
			fmt.Sprintf("unknown conflict %s", conflictID))
	}

	var resolved models.Record
	switch strategy {
	case models.StrategyLocalWins:
		resolved = conflict.LocalData.Clone()
	case models.StrategyRemoteWins:
		resolved = conflict.RemoteData.Clone()
	case models.StrategyMerge:
		resolved = mergeRecords(conflict.LocalData, conflict.RemoteData)
	case models.StrategyTimestampWins:
		resolved = newerByTimestamp(conflict.LocalData, conflict.RemoteData)
	case models.StrategyManual:
		if manualData == nil {
			return nil, apperrors.New(apperrors.ErrInvalid,
				"manual resolution requires caller-supplied data")
		}
		resolved = manualData.Clone()
	case models.StrategyFieldLevel:
		resolved = m.resolveFieldLevel(conflict)
	default:
		return nil, apperrors.New(apperrors.ErrInvalid,
			fmt.Sprintf("unknown resolution strategy %q", strategy))
	}

	now := time.Now()
	m.mu.Lock()
	conflict.Strategy = strategy
	conflict.Resolved = true
	conflict.ResolvedData = resolved
	conflict.ResolvedAt = now
	m.mu.Unlock()

	if m.journal != nil {
		entry := &models.ConflictLog{
			ID:             uuid.New(),
			Table:          conflict.Table,
			RecordID:       conflict.RecordID,
			ConflictFields: strings.Join(conflict.ConflictFields, ","),
			Strategy:       string(strategy),
			DetectedAt:     conflict.DetectedAt.Unix(),
			ResolvedAt:     now.Unix(),
		}
		if err := m.journal.AppendConflictLog(entry); err != nil {
			logging.Warn("Failed to journal conflict resolution", map[string]interface{}{
				"conflict_id": conflict.ID,
				"error":       err.Error(),
			})
		}
	}

	observability.ConflictsResolved.WithLabelValues(string(strategy)).Inc()
	m.bus.Publish(events.ConflictResolved{Conflict: conflict})
	return conflict, nil
}

// resolveFieldLevel applies per-field policies to each conflicting field on
// top of the remote snapshot.
func (m *Manager) resolveFieldLevel(conflict *models.DataConflict) models.Record {
	resolved := conflict.RemoteData.Clone()
	if resolved == nil {
		resolved = make(models.Record)
	}

	for _, field := range conflict.ConflictFields {
		m.mu.Lock()
		policy := m.fieldPolicies[field]
		m.mu.Unlock()
		if policy == nil {
			policy = DefaultFieldPolicy
		}
		resolved[field] = policy(field, conflict.LocalData[field], conflict.RemoteData[field])
	}
	return resolved
}

// DefaultFieldPolicy: status-like fields take the remote value, free-text
// fields take the longer non-empty value, array fields union.
func DefaultFieldPolicy(field string, local, remote interface{}) interface{} {
	if isStatusField(field) {
		return remote
	}

	if localText, ok := local.(string); ok {
		if remoteText, ok := remote.(string); ok {
			switch {
			case localText == "":
				return remote
			case remoteText == "":
				return local
			case len(localText) > len(remoteText):
				return local
			default:
				return remote
			}
		}
	}

	if localArr, ok := local.([]interface{}); ok {
		if remoteArr, ok := remote.([]interface{}); ok {
			return unionArrays(remoteArr, localArr)
		}
	}

	return remote
}

func isStatusField(field string) bool {
	return field == "status" || field == "state" ||
		strings.HasSuffix(field, "_status") || strings.HasSuffix(field, "_state")
}

// diffFields computes the sorted symmetric set of non-volatile field names
// whose values differ between two snapshots.
func diffFields(local, remote models.Record) []string {
	names := make(map[string]struct{}, len(local)+len(remote))
	for name := range local {
		names[name] = struct{}{}
	}
	for name := range remote {
		names[name] = struct{}{}
	}

	var fields []string
	for name := range names {
		if _, volatile := volatileFields[name]; volatile {
			continue
		}
		if !valueEqual(local[name], remote[name]) {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	return fields
}

// valueEqual deep-compares two JSON-decoded values. Numbers compare by
// value regardless of Go type, arrays are order-sensitive, objects compare
// by key set plus recursive equality.
func valueEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if aNum, aOK := asNumber(a); aOK {
		bNum, bOK := asNumber(b)
		return bOK && aNum == bNum
	}

	switch aValue := a.(type) {
	case []interface{}:
		bValue, ok := b.([]interface{})
		if !ok || len(aValue) != len(bValue) {
			return false
		}
		for i := range aValue {
			if !valueEqual(aValue[i], bValue[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		bValue, ok := b.(map[string]interface{})
		if !ok || len(aValue) != len(bValue) {
			return false
		}
		for key, av := range aValue {
			bv, present := bValue[key]
			if !present || !valueEqual(av, bv) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// mergeRecords takes the remote snapshot as base and fills in local values
// where the remote value is null or empty; array fields union.
func mergeRecords(local, remote models.Record) models.Record {
	merged := remote.Clone()
	if merged == nil {
		merged = make(models.Record)
	}

	for field, localValue := range local {
		remoteValue, present := merged[field]
		if !present || remoteValue == nil || remoteValue == "" {
			merged[field] = localValue
			continue
		}
		if remoteArr, ok := remoteValue.([]interface{}); ok {
			if localArr, ok := localValue.([]interface{}); ok {
				merged[field] = unionArrays(remoteArr, localArr)
			}
		}
	}
	return merged
}

// unionArrays keeps base order and appends extra elements not already
// present by deep equality.
func unionArrays(base, extra []interface{}) []interface{} {
	union := make([]interface{}, len(base))
	copy(union, base)
	for _, candidate := range extra {
		found := false
		for _, existing := range union {
			if valueEqual(existing, candidate) {
				found = true
				break
			}
		}
		if !found {
			union = append(union, candidate)
		}
	}
	return union
}

// newerByTimestamp picks the snapshot with the newer extractable timestamp,
// defaulting to remote when neither side yields one.
func newerByTimestamp(local, remote models.Record) models.Record {
	localTime, localOK := extractTimestamp(local)
	remoteTime, remoteOK := extractTimestamp(remote)

	if localOK && (!remoteOK || localTime.After(remoteTime)) {
		return local.Clone()
	}
	return remote.Clone()
}

// extractTimestamp probes the snapshot's timestamp fields in priority order
// and parses the first extractable one.
func extractTimestamp(record models.Record) (time.Time, bool) {
	for _, field := range timestampPriority {
		value, present := record[field]
		if !present {
			continue
		}
		switch ts := value.(type) {
		case string:
			if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				return parsed, true
			}
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				return parsed, true
			}
		case float64:
			if ts > 1e12 { // milliseconds
				return time.UnixMilli(int64(ts)), true
			}
			return time.Unix(int64(ts), 0), true
		case int64:
			if ts > 1e12 {
				return time.UnixMilli(ts), true
			}
			return time.Unix(ts, 0), true
		case time.Time:
			return ts, true
		}
	}
	return time.Time{}, false
}
