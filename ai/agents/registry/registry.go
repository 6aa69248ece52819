// Package registry provides tool registration and lookup for the agent loop.
package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	agent "github.com/notesense/notesense/ai/agents"
	"github.com/notesense/notesense/ai/core/llm"
)

// ToolRegistry is the closed set of tools a run may invoke. Dispatch is by
// name over this enumerable set; there is no open-ended reflection.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]agent.ToolWithSchema
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]agent.ToolWithSchema),
	}
}

// Register registers a tool under its own name.
func (r *ToolRegistry) Register(tool agent.ToolWithSchema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *ToolRegistry) Get(name string) (agent.ToolWithSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tool names, sorted.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns the tool set in the shape the generation service
// expects: name, description, and the input schema as a JSON string.
func (r *ToolRegistry) Descriptors() ([]llm.ToolDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	descriptors := make([]llm.ToolDescriptor, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		params, err := json.Marshal(tool.Parameters())
		if err != nil {
			return nil, fmt.Errorf("marshal parameters for tool %s: %w", name, err)
		}
		descriptors = append(descriptors, llm.ToolDescriptor{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  string(params),
		})
	}
	return descriptors, nil
}
