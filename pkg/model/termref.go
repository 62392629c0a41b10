package model

import (
	"encoding/json"
	"fmt"
)

// TermKind tags which term collection a TermRef points into.
type TermKind string

const (
	BaseTermKind        TermKind = "BaseTerm"
	FunctionTermKind    TermKind = "FunctionTerm"
	ReifiedEdgeTermKind TermKind = "ReifiedEdgeTerm"
)

// Valid reports whether k is one of the three term kinds.
func (k TermKind) Valid() bool {
	switch k {
	case BaseTermKind, FunctionTermKind, ReifiedEdgeTermKind:
		return true
	}
	return false
}

// TermRef references a term of a known kind by its snapshot-local ID.
//
// JSON form: {"kind":"BaseTerm","id":3}
type TermRef struct {
	Kind TermKind `json:"kind"`
	ID   int64    `json:"id"`
}

// BaseTermRef, FunctionTermRef and ReifiedEdgeTermRef build references.
func BaseTermRef(id int64) *TermRef        { return &TermRef{Kind: BaseTermKind, ID: id} }
func FunctionTermRef(id int64) *TermRef    { return &TermRef{Kind: FunctionTermKind, ID: id} }
func ReifiedEdgeTermRef(id int64) *TermRef { return &TermRef{Kind: ReifiedEdgeTermKind, ID: id} }

func (r TermRef) String() string {
	return fmt.Sprintf("%s(%d)", r.Kind, r.ID)
}

// UnmarshalJSON rejects unknown kinds so an invalid tag never reaches the
// clone engine.
func (r *TermRef) UnmarshalJSON(data []byte) error {
	type plain TermRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("unknown term kind %q", p.Kind)
	}
	*r = TermRef(p)
	return nil
}
