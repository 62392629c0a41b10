// Package storage schema management for unique property indexes.
//
// A unique index maps (label, property, value) to exactly one node. The index
// entries live in Badger next to the nodes and are maintained by every
// BadgerTransaction write, so a lookup never sees a value that a concurrent
// uncommitted transaction is moving.
package storage

import (
	"fmt"
	"sort"
	"sync"
)

// ConstraintType represents the type of constraint.
type ConstraintType string

const (
	ConstraintUnique ConstraintType = "UNIQUE"
)

// Constraint represents a schema constraint on one labeled property.
type Constraint struct {
	Name     string
	Type     ConstraintType
	Label    string
	Property string
}

// SchemaManager tracks which (label, property) pairs carry a unique index.
type SchemaManager struct {
	mu          sync.RWMutex
	constraints map[string]Constraint // key: normalized label + ":" + property
}

// NewSchemaManager creates a schema manager with no constraints.
func NewSchemaManager() *SchemaManager {
	return &SchemaManager{
		constraints: make(map[string]Constraint),
	}
}

func constraintKey(label, property string) string {
	return normalizeLabel(label) + ":" + property
}

// AddUniqueConstraint registers a unique index on label.property.
//
// Registering the same pair twice is a no-op. Constraints must be registered
// before data carrying the property is written; existing nodes are not
// back-filled.
func (sm *SchemaManager) AddUniqueConstraint(name, label, property string) error {
	if label == "" || property == "" {
		return fmt.Errorf("unique constraint %q: label and property are required", name)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	key := constraintKey(label, property)
	if _, exists := sm.constraints[key]; exists {
		return nil
	}
	sm.constraints[key] = Constraint{
		Name:     name,
		Type:     ConstraintUnique,
		Label:    label,
		Property: property,
	}
	return nil
}

// UniqueProperties returns the uniquely indexed properties for label, sorted.
func (sm *SchemaManager) UniqueProperties(label string) []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	norm := normalizeLabel(label)
	var props []string
	for _, c := range sm.constraints {
		if normalizeLabel(c.Label) == norm {
			props = append(props, c.Property)
		}
	}
	sort.Strings(props)
	return props
}

// HasUnique reports whether label.property is uniquely indexed.
func (sm *SchemaManager) HasUnique(label, property string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.constraints[constraintKey(label, property)]
	return ok
}

// GetConstraints returns all registered constraints.
func (sm *SchemaManager) GetConstraints() []Constraint {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]Constraint, 0, len(sm.constraints))
	for _, c := range sm.constraints {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ConstraintViolationError reports a write that would break a unique index.
//
// It unwraps to ErrAlreadyExists so callers can treat it as a duplicate object.
type ConstraintViolationError struct {
	Type     ConstraintType
	Label    string
	Property string
	Value    any
	Existing NodeID
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("constraint violation (%s on %s.%s): value %v already held by node %s",
		e.Type, e.Label, e.Property, e.Value, e.Existing)
}

func (e *ConstraintViolationError) Unwrap() error {
	return ErrAlreadyExists
}
