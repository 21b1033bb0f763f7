package errors

import "strings"

// ErrorCode is a string representation of a specific error condition.
// Codes are grouped by module prefix: COMMON (cross-cutting), EXPR
// (expression store / aggregation), SCORE (concentration scoring), DIFF
// (differential expression), CAT (category lookup), RUN (pipeline
// orchestration, export, persistence).
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Sentinel codes.
const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Common error codes.
const (
	CodeInternal      ErrorCode = "COMMON_001"
	CodeInvalidParam  ErrorCode = "COMMON_002"
	CodeValidation    ErrorCode = "COMMON_003"
	CodeNotFound      ErrorCode = "COMMON_004"
	CodeSerialization ErrorCode = "COMMON_005"
	CodeDatabaseError ErrorCode = "COMMON_006"
	CodeStorageError  ErrorCode = "COMMON_007"
)

// Expression module error codes.  All of these are MalformedInput
// conditions: the expression store cannot supply data for the configured
// gene/cluster/condition set, so the run aborts before writing output.
const (
	CodeMalformedInput     ErrorCode = "EXPR_001"
	CodeMalformedMatrix    ErrorCode = "EXPR_002"
	CodeUnknownGene        ErrorCode = "EXPR_003"
	CodeUnknownCluster     ErrorCode = "EXPR_004"
	CodeUnknownCondition   ErrorCode = "EXPR_005"
	CodeAnnotationMismatch ErrorCode = "EXPR_006"
)

// Concentration module error codes.
const (
	// CodeUndefinedScore marks a gene whose total expression across all
	// clusters is zero, so no share vector exists.  Recoverable: the gene is
	// excluded from the final table, never reported as NaN.
	CodeUndefinedScore ErrorCode = "SCORE_001"
)

// Differential module error codes.
const (
	// CodeMissingDifferentialData marks a cluster with zero cells in one of
	// the two compared conditions.  Recoverable: the cluster contributes no
	// candidate record.
	CodeMissingDifferentialData ErrorCode = "DIFF_001"

	// CodeNoInductionEvidence marks a gene for which no cluster passed the
	// prevalence/fold-change filter.  Recoverable: the gene is excluded.
	CodeNoInductionEvidence ErrorCode = "DIFF_002"

	// CodeUnsupportedTest marks a configured test family the engine does not
	// implement.  Fatal at configuration time.
	CodeUnsupportedTest ErrorCode = "DIFF_003"
)

// Category module error codes.
const (
	// CodeCategoryParseFailed marks an unreadable category table.  Fatal.
	CodeCategoryParseFailed ErrorCode = "CAT_001"

	// CodeMissingCategory marks a gene absent from the category assignment.
	// Recoverable: inner-join semantics drop the gene silently.
	CodeMissingCategory ErrorCode = "CAT_002"
)

// Run module error codes.
const (
	CodeRunFailed      ErrorCode = "RUN_001"
	CodeExportFailed   ErrorCode = "RUN_002"
	CodePersistFailed  ErrorCode = "RUN_003"
	CodeArtifactFailed ErrorCode = "RUN_004"
)

// recoverableCodes are the per-gene / per-cluster conditions that the
// pipeline recovers from locally by excluding the affected entity from the
// final table.  Everything else aborts the run.
var recoverableCodes = map[ErrorCode]bool{
	CodeUndefinedScore:          true,
	CodeMissingDifferentialData: true,
	CodeNoInductionEvidence:     true,
	CodeMissingCategory:         true,
}

// RecoverableCode reports whether code is recovered by per-entity exclusion.
func RecoverableCode(code ErrorCode) bool {
	return recoverableCodes[code]
}

// FatalCode reports whether code aborts the run.  OK is not fatal; any code
// that is not explicitly recoverable is.
func FatalCode(code ErrorCode) bool {
	if code == CodeOK {
		return false
	}
	return !recoverableCodes[code]
}

// ModuleForCode returns the module prefix of an ErrorCode, used as a metric
// label.
func ModuleForCode(code ErrorCode) string {
	parts := strings.SplitN(string(code), "_", 2)
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
