/*
Copyright © 2025 3 Leaps (hello@3leaps.net and https://3leaps.net)
*/
package ops

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func register(t *testing.T, r *Registry, name string, group CommandGroup, category CommandCategory) {
	t.Helper()
	err := r.Register(&CommandRegistration{
		Name:         name,
		Group:        group,
		Category:     category,
		Capabilities: GetDefaultCapabilities(group, category),
		Command:      &cobra.Command{Use: name},
		Description:  name + " command",
	})
	if err != nil {
		t.Fatalf("registration of %s failed: %v", name, err)
	}
}

func coreRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	for name, c := range coreCommands {
		register(t, r, name, c.Group, c.Category)
	}
	return r
}

func TestRegistry_BasicRegistration(t *testing.T) {
	registry := NewRegistry()
	testCmd := &cobra.Command{Use: "check", Short: "Check drift"}

	err := registry.Register(&CommandRegistration{
		Name:        "check",
		Group:       GroupReconcile,
		Category:    CategoryDrift,
		Command:     testCmd,
		Description: "Report drift",
	})
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	cmd, exists := registry.GetCommand("check")
	if !exists {
		t.Fatal("Expected command to exist after registration")
	}
	if cmd.Group != GroupReconcile {
		t.Errorf("Expected command group 'reconcile', got '%s'", cmd.Group)
	}
	if cmd.Category != CategoryDrift {
		t.Errorf("Expected category 'drift', got '%s'", cmd.Category)
	}
	if cmd.Command != testCmd {
		t.Error("Expected command object to match registered command")
	}
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewRegistry()
	register(t, registry, "fix", GroupReconcile, CategoryDrift)

	err := registry.Register(&CommandRegistration{Name: "fix", Group: GroupWorkflow})
	if err == nil {
		t.Fatal("Expected duplicate registration to fail")
	}
	if err.Error() != "command fix already registered" {
		t.Errorf("unexpected error: %v", err)
	}

	cmd, _ := registry.GetCommand("fix")
	if cmd.Group != GroupReconcile {
		t.Errorf("original registration was replaced: %s", cmd.Group)
	}
}

func TestRegistry_RequiresName(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&CommandRegistration{}); err == nil {
		t.Fatal("Expected nameless registration to fail")
	}
	if err := registry.Register(nil); err == nil {
		t.Fatal("Expected nil registration to fail")
	}
}

func TestRegistry_GetCommandsByGroupSorted(t *testing.T) {
	registry := NewRegistry()
	register(t, registry, "verify", GroupReconcile, CategoryValidation)
	register(t, registry, "check", GroupReconcile, CategoryDrift)
	register(t, registry, "regenerate", GroupReconcile, CategoryGeneration)
	register(t, registry, "version", GroupSupport, CategoryInformation)

	got := registry.GetCommandsByGroup(GroupReconcile)
	var names []string
	for _, c := range got {
		names = append(names, c.Name)
	}
	if strings.Join(names, ",") != "check,regenerate,verify" {
		t.Errorf("unexpected order: %v", names)
	}

	if n := len(registry.GetCommandsByGroup(GroupWorkflow)); n != 0 {
		t.Errorf("expected empty workflow group, got %d", n)
	}

	groups := registry.ListGroups()
	if groups[GroupReconcile] != 3 || groups[GroupSupport] != 1 {
		t.Errorf("unexpected group counts: %v", groups)
	}
	if len(registry.GetAllCommands()) != 4 {
		t.Errorf("expected 4 commands, got %d", len(registry.GetAllCommands()))
	}
}

func TestGetDefaultCapabilities(t *testing.T) {
	tests := []struct {
		group    CommandGroup
		category CommandCategory
		want     CommandCapabilities
	}{
		{GroupReconcile, CategoryGeneration, CommandCapabilities{RequiresCleanTree: true, RunsExternalTools: true}},
		{GroupReconcile, CategoryDrift, CommandCapabilities{SupportsJSON: true}},
		{GroupWorkflow, CategoryValidation, CommandCapabilities{ReadOnly: true, RunsExternalTools: true}},
		{GroupWorkflow, CategoryExport, CommandCapabilities{RunsExternalTools: true}},
		{GroupSupport, CategoryInformation, CommandCapabilities{ReadOnly: true, SupportsJSON: true}},
	}
	for _, tt := range tests {
		if got := GetDefaultCapabilities(tt.group, tt.category); got != tt.want {
			t.Errorf("%s/%s: got %+v, want %+v", tt.group, tt.category, got, tt.want)
		}
	}
}

func TestTaxonomyValidation(t *testing.T) {
	errs := NewTaxonomyValidator().Validate(coreRegistry(t))
	if len(errs) != 0 {
		t.Errorf("expected a clean core registry, got:\n%s", FormatErrors(errs))
	}
}

func TestTaxonomyValidation_MissingCoreCommand(t *testing.T) {
	registry := coreRegistry(t)
	delete(registry.commands, "fix")

	errs := NewTaxonomyValidator().Validate(registry)
	core := FilterErrors(errs, ErrorTypeCoreCommand)
	if len(core) != 1 || core[0].Command != "fix" {
		t.Fatalf("expected one missing core command error, got %v", core)
	}
	if !strings.Contains(core[0].Error(), "[ERROR] fix") {
		t.Errorf("unexpected message: %s", core[0].Error())
	}
}

func TestTaxonomyValidation_WrongClassification(t *testing.T) {
	registry := NewRegistry()
	register(t, registry, "check", GroupWorkflow, CategoryValidation)

	errs := FilterErrors(NewTaxonomyValidator().Validate(registry), ErrorTypeCoreCommand)
	var sawGroup, sawCategory bool
	for _, e := range errs {
		if e.Command != "check" {
			continue
		}
		sawGroup = sawGroup || strings.Contains(e.Message, "Incorrect group")
		sawCategory = sawCategory || strings.Contains(e.Message, "Incorrect category")
	}
	if !sawGroup || !sawCategory {
		t.Errorf("expected group and category errors for check, got %v", errs)
	}
}

func TestTaxonomyValidation_ExtensionAndInvalidCategory(t *testing.T) {
	registry := coreRegistry(t)
	register(t, registry, "docs", GroupSupport, CategoryExport)

	errs := NewTaxonomyValidator().Validate(registry)
	warnings := FilterErrorsBySeverity(errs, SeverityWarning)
	if len(warnings) != 1 || warnings[0].Command != "docs" {
		t.Errorf("expected one extension warning, got %v", warnings)
	}
	consistency := FilterErrors(errs, ErrorTypeTaxonomyConsistency)
	if len(consistency) != 1 || !strings.Contains(consistency[0].Message, "not allowed for group support") {
		t.Errorf("expected invalid category error, got %v", consistency)
	}
}

func TestFormatErrors(t *testing.T) {
	if got := FormatErrors(nil); got != "No validation errors found" {
		t.Errorf("unexpected empty format: %q", got)
	}
	out := FormatErrors([]ValidationError{{Severity: SeverityInfo, Command: "x", Message: "note"}})
	if !strings.HasPrefix(out, "Found 1 validation errors:\n1. [INFO] x: note") {
		t.Errorf("unexpected format: %q", out)
	}
}
