package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidSnapshot is wrapped by every ReadNetwork / Validate failure.
var ErrInvalidSnapshot = errors.New("invalid network snapshot")

var snapshotValidate = validator.New()

// ReadNetwork decodes a JSON snapshot.
//
// Entity IDs may be omitted inside the map values; they default to the map
// key. An entity whose ID disagrees with its key is rejected.
func ReadNetwork(r io.Reader) (*Network, error) {
	var n Network
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	n.ensureMaps()

	if err := fixIDs(n.Namespaces, func(v *Namespace) *int64 { return &v.ID }); err != nil {
		return nil, fmt.Errorf("namespaces: %w", err)
	}
	if err := fixIDs(n.BaseTerms, func(v *BaseTerm) *int64 { return &v.ID }); err != nil {
		return nil, fmt.Errorf("baseTerms: %w", err)
	}
	if err := fixIDs(n.Citations, func(v *Citation) *int64 { return &v.ID }); err != nil {
		return nil, fmt.Errorf("citations: %w", err)
	}
	if err := fixIDs(n.Supports, func(v *Support) *int64 { return &v.ID }); err != nil {
		return nil, fmt.Errorf("supports: %w", err)
	}
	if err := fixIDs(n.ReifiedEdgeTerms, func(v *ReifiedEdgeTerm) *int64 { return &v.ID }); err != nil {
		return nil, fmt.Errorf("reifiedEdgeTerms: %w", err)
	}
	if err := fixIDs(n.FunctionTerms, func(v *FunctionTerm) *int64 { return &v.ID }); err != nil {
		return nil, fmt.Errorf("functionTerms: %w", err)
	}
	if err := fixIDs(n.Nodes, func(v *Node) *int64 { return &v.ID }); err != nil {
		return nil, fmt.Errorf("nodes: %w", err)
	}
	if err := fixIDs(n.Edges, func(v *Edge) *int64 { return &v.ID }); err != nil {
		return nil, fmt.Errorf("edges: %w", err)
	}
	return &n, nil
}

func fixIDs[V any](m map[int64]*V, id func(*V) *int64) error {
	for key, v := range m {
		if v == nil {
			return fmt.Errorf("%w: entry %d is null", ErrInvalidSnapshot, key)
		}
		p := id(v)
		switch *p {
		case 0:
			*p = key
		case key:
		default:
			return fmt.Errorf("%w: entry %d carries id %d", ErrInvalidSnapshot, key, *p)
		}
	}
	return nil
}

// Validate checks the struct-level rules of a snapshot: a non-empty name, a
// known visibility and a predicate string on every property. Cross-reference
// resolution is left to the clone engine, which reports the exact reference.
func (n *Network) Validate() error {
	if err := snapshotValidate.Struct(n); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &FieldError{Field: fe.Namespace(), Tag: fe.Tag()}
		}
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return nil
}

// FieldError names the first snapshot field that failed Validate.
type FieldError struct {
	Field string
	Tag   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %s failed %q", ErrInvalidSnapshot, e.Field, e.Tag)
}

func (e *FieldError) Unwrap() error { return ErrInvalidSnapshot }
