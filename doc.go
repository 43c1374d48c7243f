// Package conductor is a declarative workflow engine composing agents into
// sequential ensembles. Ensembles are YAML documents describing a flow of
// agent steps with template-interpolated inputs, capability-gated shared
// state, quality-gated scoring retries and durable suspend/resume for
// human-in-the-loop steps.
package conductor
