package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	ensemble := NewEnsemble("pipeline")
	ensemble.NewStep("research").ID = "research"
	ensemble.NewStep("writer@v2")
	assert.Empty(t, ensemble.Validate())

	unnamed := NewEnsemble("")
	unnamed.NewStep("a")
	issues := unnamed.Validate()
	assert.Len(t, issues, 1)
	assert.Contains(t, issues[0].Error(), "name")

	duplicated := NewEnsemble("pipeline")
	duplicated.NewStep("a").ID = "same"
	duplicated.NewStep("b").ID = "same"
	issues = duplicated.Validate()
	assert.Len(t, issues, 1)
	assert.Contains(t, issues[0].Error(), "duplicate")

	badTimeout := NewEnsemble("pipeline")
	badTimeout.NewStep("a").Timeout = "soon"
	assert.Len(t, badTimeout.Validate(), 1)

	badThreshold := NewEnsemble("pipeline")
	badThreshold.NewStep("a")
	badThreshold.Scoring = &ScoringConfig{Thresholds: &Thresholds{Minimum: 1.2}}
	assert.Len(t, badThreshold.Validate(), 1)

	unknownKey := NewEnsemble("pipeline")
	unknownKey.State = &StateConfig{Schema: map[string]string{"findings": "string"}}
	unknownKey.NewStep("a").State = &StateDeclaration{Set: []string{"other"}}
	issues = unknownKey.Validate()
	assert.Len(t, issues, 1)
	assert.Contains(t, issues[0].Error(), "other")
}

func TestStepKeyAndAgentName(t *testing.T) {
	step := &Step{Agent: "writer@v2"}
	assert.Equal(t, "writer", step.AgentName())
	assert.Equal(t, "writer", step.Key())

	step.ID = "draft"
	assert.Equal(t, "draft", step.Key())

	plain := &Step{Agent: "writer"}
	assert.Equal(t, "writer", plain.AgentName())

	timed := &Step{Agent: "writer", Timeout: "45s"}
	duration, err := timed.TimeoutDuration()
	assert.NoError(t, err)
	assert.Equal(t, 45*time.Second, duration)
}

func TestCloneIsDeep(t *testing.T) {
	ensemble := NewEnsemble("pipeline")
	step := ensemble.NewStep("research")
	step.State = &StateDeclaration{Use: []string{"findings"}}
	ensemble.State = &StateConfig{Initial: map[string]interface{}{"findings": ""}}
	ensemble.Scoring = &ScoringConfig{Enabled: true, Weights: map[string]float64{"a": 1}}

	clone := ensemble.Clone()
	clone.Flow[0].Agent = "changed"
	clone.Flow[0].State.Use[0] = "changed"
	clone.State.Initial["findings"] = "changed"
	clone.Scoring.Weights["a"] = 9

	assert.Equal(t, "research", ensemble.Flow[0].Agent)
	assert.Equal(t, "findings", ensemble.Flow[0].State.Use[0])
	assert.Equal(t, "", ensemble.State.Initial["findings"])
	assert.Equal(t, float64(1), ensemble.Scoring.Weights["a"])
}
