package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ensemblehq/conductor/service/agent"
	"github.com/ensemblehq/conductor/service/repository"
)

const name = "storage"

// Agent exposes a repository to ensembles: put/get/delete/list over JSON
// documents, driven by the step input.
type Agent struct {
	repository repository.Service
}

// New creates a storage agent backed by the supplied repository.
func New(repo repository.Service) *Agent {
	return &Agent{repository: repo}
}

// Name returns the agent name.
func (a *Agent) Name() string {
	return name
}

// Execute dispatches on the "op" input field.
func (a *Agent) Execute(ctx context.Context, execCtx *agent.Context) (*agent.Response, error) {
	input, ok := execCtx.Input.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("storage agent expects an object input, got %T", execCtx.Input)
	}
	op, _ := input["op"].(string)
	key, _ := input["key"].(string)
	switch op {
	case "put":
		if key == "" {
			return nil, fmt.Errorf("storage put requires a key")
		}
		data, err := json.Marshal(input["value"])
		if err != nil {
			return nil, fmt.Errorf("failed to encode value for %s: %w", key, err)
		}
		if err := a.repository.Put(ctx, key, data); err != nil {
			return nil, err
		}
		return &agent.Response{Data: map[string]interface{}{"key": key}}, nil
	case "get":
		if key == "" {
			return nil, fmt.Errorf("storage get requires a key")
		}
		data, err := a.repository.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		var value interface{}
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("failed to decode value for %s: %w", key, err)
		}
		return &agent.Response{Data: value}, nil
	case "delete":
		if key == "" {
			return nil, fmt.Errorf("storage delete requires a key")
		}
		if err := a.repository.Delete(ctx, key); err != nil {
			return nil, err
		}
		return &agent.Response{Data: map[string]interface{}{"key": key}}, nil
	case "list":
		prefix, _ := input["prefix"].(string)
		keys, err := a.repository.List(ctx, prefix)
		if err != nil {
			return nil, err
		}
		return &agent.Response{Data: keys}, nil
	default:
		return nil, fmt.Errorf("unsupported storage op: %v", op)
	}
}
