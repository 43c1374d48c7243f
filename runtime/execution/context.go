package execution

// Context is the transient outer container threaded through the step loop.
// It holds the original input, the latest state and scoring views, and one
// entry per completed step keyed by step id or agent name. It only ever
// grows during a run.
type Context map[string]interface{}

const (
	keyInput   = "input"
	keyState   = "state"
	keyScoring = "scoring"
	keyOutput  = "output"
)

// NewContext seeds an execution context with the original input.
func NewContext(input interface{}) Context {
	return Context{keyInput: input}
}

// Input returns the execution's original input.
func (c Context) Input() interface{} {
	return c[keyInput]
}

// MergeInput folds extra input values into the context's input map, used
// when a resume call supplies additional data.
func (c Context) MergeInput(extra map[string]interface{}) {
	if len(extra) == 0 {
		return
	}
	current, ok := c[keyInput].(map[string]interface{})
	if !ok {
		current = map[string]interface{}{}
	}
	merged := make(map[string]interface{}, len(current)+len(extra))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	c[keyInput] = merged
}

// SetStepOutput records a completed step's output under its key.
func (c Context) SetStepOutput(key string, output interface{}) {
	c[key] = map[string]interface{}{keyOutput: output}
}

// StepOutput returns a completed step's output, nil when the step has not
// run.
func (c Context) StepOutput(key string) interface{} {
	entry, ok := c[key].(map[string]interface{})
	if !ok {
		return nil
	}
	return entry[keyOutput]
}

// SetStateView refreshes the state snapshot visible to interpolations.
func (c Context) SetStateView(snapshot map[string]interface{}) {
	c[keyState] = snapshot
}

// SetScoringView refreshes the scoring view visible to interpolations.
func (c Context) SetScoringView(view interface{}) {
	c[keyScoring] = view
}

// Clone returns a shallow copy, enough to decouple a suspension snapshot
// from the live loop since stored values are never mutated in place.
func (c Context) Clone() Context {
	ret := make(Context, len(c))
	for k, v := range c {
		ret[k] = v
	}
	return ret
}
