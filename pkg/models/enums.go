// Package models defines the persisted row types and request/response
// shapes shared by the store, pipeline, and API layers.
package models

// ExecutionStatus is the lifecycle state of a task execution.
type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "pending"
	ExecutionStatusScanning   ExecutionStatus = "scanning"
	ExecutionStatusAnalyzing  ExecutionStatus = "analyzing"
	ExecutionStatusAssembling ExecutionStatus = "assembling"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusFailed     ExecutionStatus = "failed"
	ExecutionStatusCancelled  ExecutionStatus = "cancelled"
)

// IsValid checks if the execution status is a known value.
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusScanning, ExecutionStatusAnalyzing,
		ExecutionStatusAssembling, ExecutionStatusCompleted, ExecutionStatusFailed,
		ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// Stage names emitted to the progress log. Stages respect the pipeline
// phase order; subscribers may rely on this ordering.
type Stage string

const (
	StageInit       Stage = "init"
	StageSchema     Stage = "schema"
	StageAnalyzing  Stage = "analyzing"
	StageETL        Stage = "etl"
	StageTolerance  Stage = "tolerance"
	StageAssembling Stage = "assembling"
	StageUpload     Stage = "upload"
	StageFinalize   Stage = "finalize"
)

// StageOrder maps each stage to its position in the pipeline.
// Used by tests to assert phase ordering.
var StageOrder = map[Stage]int{
	StageInit:       1,
	StageSchema:     2,
	StageAnalyzing:  3,
	StageETL:        4,
	StageTolerance:  5,
	StageAssembling: 6,
	StageUpload:     7,
	StageFinalize:   8,
}

// SemanticType classifies what kind of value a placeholder resolves to.
type SemanticType string

const (
	SemanticTypeScalarStat SemanticType = "scalar-stat"
	SemanticTypeRanking    SemanticType = "ranking"
	SemanticTypePeriod     SemanticType = "period"
	SemanticTypeCompare    SemanticType = "compare"
	SemanticTypeChart      SemanticType = "chart"
)

// IsValid checks if the semantic type is a known value.
func (t SemanticType) IsValid() bool {
	switch t {
	case SemanticTypeScalarStat, SemanticTypeRanking, SemanticTypePeriod,
		SemanticTypeCompare, SemanticTypeChart:
		return true
	default:
		return false
	}
}

// GenerationMethod records how a placeholder's SQL was produced.
type GenerationMethod string

const (
	GenerationMethodValidateOnly GenerationMethod = "validate_only"
	GenerationMethodPTAV         GenerationMethod = "ptav"
	GenerationMethodPTAVFallback GenerationMethod = "ptav_fallback"
)

// StorageBackend tags which backend served or stored an artifact.
type StorageBackend string

const (
	StorageBackendPrimary  StorageBackend = "primary"
	StorageBackendFallback StorageBackend = "fallback"
)
