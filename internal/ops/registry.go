/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package ops

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cobra"
)

// CommandGroup represents the operational classification of commands
type CommandGroup string

const (
	GroupReconcile CommandGroup = "reconcile" // regenerate, check, fix, verify
	GroupWorkflow  CommandGroup = "workflow"  // lint, extract, schema
	GroupSupport   CommandGroup = "support"   // version, help
)

// CommandCategory narrows a group to the kind of work a command does
type CommandCategory string

const (
	CategoryGeneration  CommandCategory = "generation"
	CategoryDrift       CommandCategory = "drift"
	CategoryValidation  CommandCategory = "validation"
	CategoryIntegration CommandCategory = "integration"
	CategoryExport      CommandCategory = "export"
	CategoryInformation CommandCategory = "information"
)

// CommandCapabilities describes how a command interacts with the working tree
type CommandCapabilities struct {
	// ReadOnly commands never write to the template or project
	ReadOnly bool
	// SupportsJSON commands honour the global --json flag for their result
	SupportsJSON bool
	// RequiresCleanTree commands refuse to run on a dirty git worktree
	RequiresCleanTree bool
	// RunsExternalTools commands go through the tool executor (and so honour --no-op)
	RunsExternalTools bool
}

// CommandRegistration represents a registered command with its classification
type CommandRegistration struct {
	Name         string
	Group        CommandGroup
	Category     CommandCategory
	Capabilities CommandCapabilities
	Command      *cobra.Command
	Description  string
}

// Registry manages command classifications and registrations
type Registry struct {
	mu         sync.RWMutex
	commands   map[string]*CommandRegistration
	groupIndex map[CommandGroup][]*CommandRegistration
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		commands:   make(map[string]*CommandRegistration),
		groupIndex: make(map[CommandGroup][]*CommandRegistration),
	}
}

// Global registry instance
var globalRegistry = NewRegistry()

// GetRegistry returns the global command registry
func GetRegistry() *Registry {
	return globalRegistry
}

// GetDefaultCapabilities returns the capabilities usually implied by a classification
func GetDefaultCapabilities(group CommandGroup, category CommandCategory) CommandCapabilities {
	caps := CommandCapabilities{}
	switch category {
	case CategoryGeneration:
		caps.RequiresCleanTree = true
		caps.RunsExternalTools = true
	case CategoryDrift:
		caps.SupportsJSON = true
	case CategoryValidation:
		caps.ReadOnly = true
		caps.RunsExternalTools = true
	case CategoryIntegration:
		caps.SupportsJSON = true
	case CategoryExport:
		caps.RunsExternalTools = true
	case CategoryInformation:
		caps.ReadOnly = true
		caps.SupportsJSON = true
	}
	if group == GroupSupport {
		caps.ReadOnly = true
	}
	return caps
}

// RegisterCommandWithTaxonomy registers a command in the global registry
func RegisterCommandWithTaxonomy(name string, group CommandGroup, category CommandCategory, caps CommandCapabilities, cmd *cobra.Command, description string) error {
	return GetRegistry().Register(&CommandRegistration{
		Name:         name,
		Group:        group,
		Category:     category,
		Capabilities: caps,
		Command:      cmd,
		Description:  description,
	})
}

// Register adds a command to the registry
func (r *Registry) Register(registration *CommandRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if registration == nil || registration.Name == "" {
		return fmt.Errorf("command registration requires a name")
	}
	if _, exists := r.commands[registration.Name]; exists {
		return fmt.Errorf("command %s already registered", registration.Name)
	}

	r.commands[registration.Name] = registration
	r.groupIndex[registration.Group] = append(r.groupIndex[registration.Group], registration)

	return nil
}

// GetCommand returns a registered command by name
func (r *Registry) GetCommand(name string) (*CommandRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, exists := r.commands[name]
	return cmd, exists
}

// GetCommandsByGroup returns all commands in a specific group, sorted by name
func (r *Registry) GetCommandsByGroup(group CommandGroup) []*CommandRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := append([]*CommandRegistration(nil), r.groupIndex[group]...)
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// GetAllCommands returns all registered commands
func (r *Registry) GetAllCommands() map[string]*CommandRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*CommandRegistration)
	for k, v := range r.commands {
		result[k] = v
	}
	return result
}

// ListGroups returns all command groups and their command counts
func (r *Registry) ListGroups() map[CommandGroup]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[CommandGroup]int)
	for group, commands := range r.groupIndex {
		result[group] = len(commands)
	}
	return result
}
