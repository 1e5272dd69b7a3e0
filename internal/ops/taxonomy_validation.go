/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package ops

import (
	"fmt"
	"sort"
	"strings"
)

// CommandClassification is the group and category a command is expected to carry.
type CommandClassification struct {
	Group    CommandGroup
	Category CommandCategory
}

// ErrorType distinguishes taxonomy findings.
type ErrorType int

const (
	ErrorTypeCoreCommand ErrorType = iota
	ErrorTypeExtensionWarning
	ErrorTypeTaxonomyConsistency
)

// ErrorSeverity ranks taxonomy findings.
type ErrorSeverity int

const (
	SeverityError ErrorSeverity = iota
	SeverityWarning
	SeverityInfo
)

var severityNames = map[ErrorSeverity]string{
	SeverityError:   "ERROR",
	SeverityWarning: "WARNING",
	SeverityInfo:    "INFO",
}

// ValidationError is one taxonomy finding.
type ValidationError struct {
	Type     ErrorType
	Severity ErrorSeverity
	Command  string
	Message  string
}

func (e ValidationError) Error() string {
	name, ok := severityNames[e.Severity]
	if !ok {
		name = "UNKNOWN"
	}
	return fmt.Sprintf("[%s] %s: %s", name, e.Command, e.Message)
}

// coreCommands pins the classification of every command stencil ships.
var coreCommands = map[string]CommandClassification{
	"regenerate": {GroupReconcile, CategoryGeneration},
	"verify":     {GroupReconcile, CategoryValidation},
	"check":      {GroupReconcile, CategoryDrift},
	"fix":        {GroupReconcile, CategoryDrift},
	"lint":       {GroupWorkflow, CategoryValidation},
	"extract":    {GroupWorkflow, CategoryIntegration},
	"schema":     {GroupWorkflow, CategoryExport},
	"version":    {GroupSupport, CategoryInformation},
}

// groupCategories lists the categories each group may use.
var groupCategories = map[CommandGroup][]CommandCategory{
	GroupReconcile: {CategoryGeneration, CategoryDrift, CategoryValidation},
	GroupWorkflow:  {CategoryValidation, CategoryIntegration, CategoryExport},
	GroupSupport:   {CategoryInformation},
}

// TaxonomyValidator checks a registry against the command taxonomy.
type TaxonomyValidator struct {
	core       map[string]CommandClassification
	categories map[CommandGroup][]CommandCategory
}

// NewTaxonomyValidator returns a validator for stencil's command set.
func NewTaxonomyValidator() *TaxonomyValidator {
	return &TaxonomyValidator{core: coreCommands, categories: groupCategories}
}

// Validate reports missing or misclassified core commands, invalid group/category pairs and,
// as warnings, commands outside the core set. Findings are ordered by command name.
func (v *TaxonomyValidator) Validate(registry *Registry) []ValidationError {
	var findings []ValidationError
	add := func(typ ErrorType, sev ErrorSeverity, name, format string, args ...interface{}) {
		findings = append(findings, ValidationError{Type: typ, Severity: sev, Command: name, Message: fmt.Sprintf(format, args...)})
	}

	for _, name := range sortedKeys(v.core) {
		want := v.core[name]
		got, ok := registry.GetCommand(name)
		if !ok {
			add(ErrorTypeCoreCommand, SeverityError, name, "Core command is not registered")
			continue
		}
		if got.Group != want.Group {
			add(ErrorTypeCoreCommand, SeverityError, name, "Incorrect group: expected %s, got %s", want.Group, got.Group)
		}
		if got.Category != want.Category {
			add(ErrorTypeCoreCommand, SeverityError, name, "Incorrect category: expected %s, got %s", want.Category, got.Category)
		}
	}

	all := registry.GetAllCommands()
	for _, name := range sortedKeys(all) {
		reg := all[name]
		allowed, known := v.categories[reg.Group]
		switch {
		case !known:
			add(ErrorTypeTaxonomyConsistency, SeverityError, name, "Uses invalid group: %s", reg.Group)
		case !containsCategory(allowed, reg.Category):
			add(ErrorTypeTaxonomyConsistency, SeverityError, name, "Category %s not allowed for group %s", reg.Category, reg.Group)
		}
		if _, core := v.core[name]; !core {
			add(ErrorTypeExtensionWarning, SeverityWarning, name, "Extension command detected - ensure proper documentation")
		}
	}
	return findings
}

func containsCategory(list []CommandCategory, c CommandCategory) bool {
	for _, item := range list {
		if item == c {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FilterErrors returns the findings of one type.
func FilterErrors(findings []ValidationError, typ ErrorType) []ValidationError {
	return filter(findings, func(e ValidationError) bool { return e.Type == typ })
}

// FilterErrorsBySeverity returns the findings of one severity.
func FilterErrorsBySeverity(findings []ValidationError, sev ErrorSeverity) []ValidationError {
	return filter(findings, func(e ValidationError) bool { return e.Severity == sev })
}

func filter(findings []ValidationError, keep func(ValidationError) bool) []ValidationError {
	var out []ValidationError
	for _, e := range findings {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// FormatErrors renders findings as a numbered list.
func FormatErrors(findings []ValidationError) string {
	if len(findings) == 0 {
		return "No validation errors found"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d validation errors:\n", len(findings))
	for i, e := range findings {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.Error())
	}
	return b.String()
}
