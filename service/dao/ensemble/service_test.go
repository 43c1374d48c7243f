package ensemble

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const validDocument = `
name: research-pipeline
description: gather and summarize findings
version: "1.0"
state:
  schema:
    findings: string
  initial:
    findings: ""
scoring:
  enabled: true
  thresholds:
    minimum: 0.7
  maxRetries: 2
  backoff:
    type: exponential
    delay: 500ms
    maxDelay: 10s
  method: weighted_average
  weights:
    writer: 2
flow:
  - id: research
    agent: researcher
    state:
      set: [findings]
    timeout: 45s
  - agent: writer@v2
    input:
      topic: ${research.output}
    scoring:
      evaluator: quality
      thresholds:
        minimum: 0.8
      maxRetries: 1
output:
  summary: ${writer.output}
`

func TestDecodeValidDocument(t *testing.T) {
	service, err := New()
	assert.NoError(t, err)

	ensemble, err := service.DecodeYAML([]byte(validDocument))
	assert.NoError(t, err)
	assert.Equal(t, "research-pipeline", ensemble.Name)
	assert.Len(t, ensemble.Flow, 2)
	assert.Equal(t, "research", ensemble.Flow[0].ID)
	assert.Equal(t, "writer", ensemble.Flow[1].AgentName())
	assert.Equal(t, []string{"findings"}, ensemble.Flow[0].State.Set)
	assert.True(t, ensemble.Scoring.Enabled)
	assert.Equal(t, 0.8, ensemble.Flow[1].Scoring.Thresholds.Minimum)
	assert.NotNil(t, ensemble.Output)
}

func TestDecodeMissingAgent(t *testing.T) {
	service, err := New()
	assert.NoError(t, err)

	document := `
name: broken
flow:
  - id: only
    timeout: 5s
`
	_, err = service.DecodeYAML([]byte(document))
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.NotEmpty(t, parseErr.Violations)
	joined := strings.Join(parseErr.Violations, "\n")
	assert.Contains(t, joined, "agent")
}

func TestDecodeMissingName(t *testing.T) {
	service, err := New()
	assert.NoError(t, err)

	document := `
flow:
  - agent: writer
`
	_, err = service.DecodeYAML([]byte(document))
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestDecodeInvalidThreshold(t *testing.T) {
	service, err := New()
	assert.NoError(t, err)

	document := `
name: broken
scoring:
  enabled: true
  thresholds:
    minimum: 1.5
flow:
  - agent: writer
`
	_, err = service.DecodeYAML([]byte(document))
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestDecodeDuplicateStepIDs(t *testing.T) {
	service, err := New()
	assert.NoError(t, err)

	document := `
name: broken
flow:
  - id: same
    agent: a
  - id: same
    agent: b
`
	_, err = service.DecodeYAML([]byte(document))
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.Contains(t, strings.Join(parseErr.Violations, "\n"), "same")
}

func TestDecodeMalformedYAML(t *testing.T) {
	service, err := New()
	assert.NoError(t, err)

	_, err = service.DecodeYAML([]byte("{not: [valid"))
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}
