package models

import "time"

// ResolutionStrategy defines how a detected conflict is resolved.
type ResolutionStrategy string

const (
	StrategyLocalWins     ResolutionStrategy = "local_wins"
	StrategyRemoteWins    ResolutionStrategy = "remote_wins"
	StrategyMerge         ResolutionStrategy = "merge"
	StrategyTimestampWins ResolutionStrategy = "timestamp_wins"
	StrategyManual        ResolutionStrategy = "manual"
	StrategyFieldLevel    ResolutionStrategy = "field_level"
)

// DataConflict records a divergence between the local and remote replicas
// of one record. Created by conflict detection, mutated only by resolution,
// retained until explicitly cleared.
type DataConflict struct {
	ID             string             `json:"id"`
	Table          string             `json:"table"`
	RecordID       string             `json:"record_id"`
	LocalData      Record             `json:"local_data"`
	RemoteData     Record             `json:"remote_data"`
	ConflictFields []string           `json:"conflict_fields"`
	DetectedAt     time.Time          `json:"detected_at"`
	Strategy       ResolutionStrategy `json:"strategy,omitempty"`
	Resolved       bool               `json:"resolved"`
	ResolvedData   Record             `json:"resolved_data,omitempty"`
	ResolvedAt     time.Time          `json:"resolved_at,omitempty"`
}

// ConflictLog journals a resolved conflict for user awareness.
type ConflictLog struct {
	ID             string `db:"id" json:"id"`
	Table          string `db:"tbl" json:"table"`
	RecordID       string `db:"record_id" json:"record_id"`
	ConflictFields string `db:"conflict_fields" json:"conflict_fields"`
	Strategy       string `db:"strategy" json:"strategy"`
	DetectedAt     int64  `db:"detected_at" json:"detected_at"`
	ResolvedAt     int64  `db:"resolved_at" json:"resolved_at"`
}

// TableName returns the table name for ConflictLog.
func (ConflictLog) TableName() string {
	return "conflict_log"
}

// DetectedAtTime returns the DetectedAt as time.Time.
func (c *ConflictLog) DetectedAtTime() time.Time {
	return time.Unix(c.DetectedAt, 0)
}
