package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknownProcedure = errors.New("rpc: unknown procedure")
	ErrInvalidParams    = errors.New("rpc: invalid parameters")
)

// Procedure is a named server-side function callable by the dashboard.
// params is the raw JSON object sent by the caller and may be empty.
type Procedure func(ctx context.Context, params json.RawMessage) (any, error)

// Registry maps procedure names to implementations.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]Procedure
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]Procedure)}
}

// Register adds a procedure. Names must be unique.
func (r *Registry) Register(name string, p Procedure) error {
	if name == "" {
		return fmt.Errorf("rpc: procedure name cannot be empty")
	}
	if p == nil {
		return fmt.Errorf("rpc: procedure %s is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.procs[name]; exists {
		return fmt.Errorf("rpc: procedure %s already registered", name)
	}
	r.procs[name] = p
	return nil
}

// Call invokes the named procedure.
func (r *Registry) Call(ctx context.Context, name string, params json.RawMessage) (any, error) {
	r.mu.RLock()
	p, ok := r.procs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcedure, name)
	}
	return p(ctx, params)
}

// Names lists registered procedures in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.procs))
	for name := range r.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeParams unmarshals params into v. Empty params leave v untouched.
func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
