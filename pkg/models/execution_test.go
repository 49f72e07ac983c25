package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionStatus_Terminal(t *testing.T) {
	assert.False(t, ExecutionStatusPending.Terminal())
	assert.False(t, ExecutionStatusRunning.Terminal())
	assert.True(t, ExecutionStatusSucceeded.Terminal())
	assert.True(t, ExecutionStatusFailed.Terminal())
	assert.True(t, ExecutionStatusCancelled.Terminal())
}

func TestExecution_StepResult(t *testing.T) {
	execution := &Execution{
		StepResults: []*StepResult{
			{StepID: "a", Status: StepStatusSucceeded},
			{StepID: "b", Status: StepStatusPending},
		},
	}

	assert.Equal(t, StepStatusSucceeded, execution.StepResult("a").Status)
	assert.Nil(t, execution.StepResult("ghost"))
}
