package errors

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "COMMON_001", CodeInternal.String())
	assert.Equal(t, "SCORE_001", CodeUndefinedScore.String())
}

func TestRecoverableCode(t *testing.T) {
	assert.True(t, RecoverableCode(CodeUndefinedScore))
	assert.True(t, RecoverableCode(CodeMissingDifferentialData))
	assert.True(t, RecoverableCode(CodeNoInductionEvidence))
	assert.True(t, RecoverableCode(CodeMissingCategory))

	assert.False(t, RecoverableCode(CodeMalformedInput))
	assert.False(t, RecoverableCode(CodeInternal))
	assert.False(t, RecoverableCode(CodeUnsupportedTest))
}

func TestFatalCode(t *testing.T) {
	tests := []struct {
		code  ErrorCode
		fatal bool
	}{
		{CodeOK, false},
		{CodeUndefinedScore, false},
		{CodeMissingDifferentialData, false},
		{CodeNoInductionEvidence, false},
		{CodeMissingCategory, false},
		{CodeMalformedInput, true},
		{CodeMalformedMatrix, true},
		{CodeCategoryParseFailed, true},
		{CodeDatabaseError, true},
		{CodeUnknown, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.fatal, FatalCode(tt.code), "code %s", tt.code)
	}
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "COMMON", ModuleForCode(CodeInternal))
	assert.Equal(t, "EXPR", ModuleForCode(CodeMalformedMatrix))
	assert.Equal(t, "SCORE", ModuleForCode(CodeUndefinedScore))
	assert.Equal(t, "DIFF", ModuleForCode(CodeNoInductionEvidence))
	assert.Equal(t, "CAT", ModuleForCode(CodeMissingCategory))
	assert.Equal(t, "RUN", ModuleForCode(CodeExportFailed))
	assert.Equal(t, "UNKNOWN", ModuleForCode(ErrorCode("")))
}

func TestErrorCodeFormat_Convention(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z]+_\d{3}$`)
	allCodes := []ErrorCode{
		CodeInternal, CodeInvalidParam, CodeValidation, CodeNotFound,
		CodeSerialization, CodeDatabaseError, CodeStorageError,
		CodeMalformedInput, CodeMalformedMatrix, CodeUnknownGene,
		CodeUnknownCluster, CodeUnknownCondition, CodeAnnotationMismatch,
		CodeUndefinedScore,
		CodeMissingDifferentialData, CodeNoInductionEvidence, CodeUnsupportedTest,
		CodeCategoryParseFailed, CodeMissingCategory,
		CodeRunFailed, CodeExportFailed, CodePersistFailed, CodeArtifactFailed,
	}
	for _, code := range allCodes {
		assert.Regexp(t, re, string(code))
	}
}
