package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowValidate(t *testing.T) {
	w := &Workflow{
		WorkflowID: "WF1",
		RootStepID: "start",
		Steps: `[
			{"step_id": "start", "type": "template", "prompt": "Halo!", "default_next": "ask"},
			{"step_id": "ask", "type": "input", "prompt": "Siapa nama Bapak/Ibu?", "save_as": "nama"}
		]`,
	}
	assert.NoError(t, w.Validate())
}

func TestWorkflowValidateRejectsUnknownRoot(t *testing.T) {
	w := &Workflow{
		WorkflowID: "WF1",
		RootStepID: "missing",
		Steps:      `[{"step_id": "start", "type": "template", "prompt": "Halo!"}]`,
	}
	assert.Error(t, w.Validate())
}

func TestWorkflowValidateRejectsDanglingNext(t *testing.T) {
	w := &Workflow{
		WorkflowID: "WF1",
		RootStepID: "start",
		Steps:      `[{"step_id": "start", "type": "template", "prompt": "Halo!", "default_next": "nowhere"}]`,
	}
	assert.Error(t, w.Validate())
}

func TestWorkflowValidateRejectsUnknownStepType(t *testing.T) {
	w := &Workflow{
		WorkflowID: "WF1",
		RootStepID: "start",
		Steps:      `[{"step_id": "start", "type": "teleport"}]`,
	}
	assert.Error(t, w.Validate())
}

func TestWorkflowValidateRejectsDuplicateStepIDs(t *testing.T) {
	w := &Workflow{
		WorkflowID: "WF1",
		RootStepID: "start",
		Steps: `[
			{"step_id": "start", "type": "template", "prompt": "a"},
			{"step_id": "start", "type": "template", "prompt": "b"}
		]`,
	}
	assert.Error(t, w.Validate())
}

func TestSessionVariableRoundTrip(t *testing.T) {
	s := &WorkflowSession{}
	vars := s.GetVariables()
	assert.Empty(t, vars)

	vars["nama"] = "Ahmad"
	s.SetVariables(vars)

	assert.Equal(t, "Ahmad", s.GetVariables()["nama"])
}

func TestSessionHistoryAppend(t *testing.T) {
	s := &WorkflowSession{}
	s.AppendHistory(StepRecord{StepID: "start", Type: StepTypeTemplate})
	s.AppendHistory(StepRecord{StepID: "ask", Type: StepTypeInput, Response: "Ahmad"})

	history := s.GetHistory()
	require.Len(t, history, 2)
	assert.Equal(t, "ask", history[1].StepID)
	assert.Equal(t, "Ahmad", history[1].Response)
}
