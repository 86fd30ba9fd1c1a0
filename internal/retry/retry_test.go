package retry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeDescriptor struct {
	framework   string
	attrName    string
	attempt     int
	hasAttempt  bool
	maxRetries  int
	hasMax      bool
	displayName string
}

func (d fakeDescriptor) Framework() string      { return d.framework }
func (d fakeDescriptor) AttributeName() string  { return d.attrName }
func (d fakeDescriptor) DisplayName() string    { return d.displayName }
func (d fakeDescriptor) AttemptFromTrait() (int, bool) {
	return d.attempt, d.hasAttempt
}
func (d fakeDescriptor) MaxRetriesFromTrait() (int, bool) {
	return d.maxRetries, d.hasMax
}

func TestDetectRetryMetadata_NoAnnotation(t *testing.T) {
	d := fakeDescriptor{framework: "nunit"}
	assert.Nil(t, DetectRetryMetadata(d, OutcomePassed))
}

func TestDetectRetryMetadata_UnrecognizedAttribute(t *testing.T) {
	d := fakeDescriptor{framework: "nunit", attrName: "SomeOtherAttr"}
	assert.Nil(t, DetectRetryMetadata(d, OutcomePassed))
}

func TestDetectRetryMetadata_RecognizedFromTrait(t *testing.T) {
	RegisterAttribute("nunit", "RetryAttribute")
	d := fakeDescriptor{
		framework:  "nunit",
		attrName:   "RetryAttribute",
		attempt:    2,
		hasAttempt: true,
		maxRetries: 3,
		hasMax:     true,
	}

	meta := DetectRetryMetadata(d, OutcomePassed)
	if assert.NotNil(t, meta) {
		assert.Equal(t, 2, meta.AttemptNumber)
		assert.Equal(t, 3, meta.MaxRetries)
		assert.True(t, meta.PassedOnRetry)
		assert.Equal(t, "RetryAttribute", meta.RetryAttributeName)
	}
}

func TestDetectRetryMetadata_FirstAttemptNeverPassedOnRetry(t *testing.T) {
	RegisterAttribute("xunit", "Retry")
	d := fakeDescriptor{framework: "xunit", attrName: "Retry", attempt: 1, hasAttempt: true}
	meta := DetectRetryMetadata(d, OutcomePassed)
	if assert.NotNil(t, meta) {
		assert.False(t, meta.PassedOnRetry)
	}
}

func TestDetectRetryMetadata_DisplayNameFallback(t *testing.T) {
	RegisterAttribute("mstest", "RetryAttribute")
	d := fakeDescriptor{
		framework:   "mstest",
		attrName:    "RetryAttribute",
		displayName: "MyTest (attempt 3)",
	}
	meta := DetectRetryMetadata(d, OutcomePassed)
	if assert.NotNil(t, meta) {
		assert.Equal(t, 3, meta.AttemptNumber)
	}
}

func TestDetectRetryMetadata_DisplayNameBracketFallback(t *testing.T) {
	RegisterAttribute("mstest", "RetryAttribute")
	d := fakeDescriptor{
		framework:   "mstest",
		attrName:    "RetryAttribute",
		displayName: "MyTest [RETRY 4]",
	}
	meta := DetectRetryMetadata(d, OutcomePassed)
	if assert.NotNil(t, meta) {
		assert.Equal(t, 4, meta.AttemptNumber)
	}
}

func TestDetectRetryMetadata_FailedOnRetryIsNotPassedOnRetry(t *testing.T) {
	RegisterAttribute("nunit", "RetryAttribute")
	d := fakeDescriptor{
		framework:  "nunit",
		attrName:   "RetryAttribute",
		attempt:    2,
		hasAttempt: true,
	}
	meta := DetectRetryMetadata(d, Outcome("Failed"))
	if assert.NotNil(t, meta) {
		assert.False(t, meta.PassedOnRetry)
	}
}
