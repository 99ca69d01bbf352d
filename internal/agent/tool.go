// Package agent runs the conversational turn: one LLM call per round, tool
// execution in between, and suppression of the spoken reply whenever a tool
// already acted on the user's behalf.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voxelware/aura/internal/vision"
	"github.com/voxelware/aura/pkg/provider/llm"
)

// ToolContext carries the per-turn bindings a tool invocation needs. It is
// assembled fresh for every turn, so a tool never observes a stale
// conversation id.
type ToolContext struct {
	// PersonID is the person currently in front of the camera, or NoPerson.
	PersonID vision.PersonID

	// ConversationID is the active thread id; rows a tool creates are
	// linked to it.
	ConversationID string

	// Notify pushes a notification straight to this client, bypassing the
	// reply path. May be nil in headless contexts.
	Notify func(title, message string)
}

// Tool is one capability offered to the model.
type Tool interface {
	// Definition describes the tool for the model.
	Definition() llm.ToolDefinition

	// Invoke executes the tool. The returned string is fed back to the
	// model as the tool result.
	Invoke(ctx context.Context, tc ToolContext, args json.RawMessage) (string, error)
}

// Registry holds the tools offered to the model, in registration order.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry from the given tools. Duplicate names panic;
// tool sets are assembled once at startup.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Definition().Name
		if _, dup := r.tools[name]; dup {
			panic(fmt.Sprintf("agent: duplicate tool %q", name))
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r
}

// Definitions returns the tool definitions in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Len reports the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// Invoke dispatches to the named tool.
func (r *Registry) Invoke(ctx context.Context, tc ToolContext, name string, args json.RawMessage) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("agent: unknown tool %q", name)
	}
	return t.Invoke(ctx, tc, args)
}
