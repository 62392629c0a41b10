// Package model defines the in-memory network snapshot handed to the clone
// engine and the summary it returns.
//
// A snapshot is the complete content of one NDEx network: namespaces, base
// terms, citations, supports, reified-edge terms, function terms, nodes and
// edges, each kept in a map keyed by an identifier that is only meaningful
// inside the snapshot. Cross-references between entities use those local
// identifiers.
//
// Example:
//
//	f, _ := os.Open("network.json")
//	defer f.Close()
//
//	snap, err := model.ReadNetwork(f)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(snap.Name, len(snap.Nodes), len(snap.Edges))
package model

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Sentinel snapshot references.
const (
	// NoNamespace marks a base term without a namespace. Any value <= 0 is
	// treated the same way.
	NoNamespace int64 = -1

	// NoCitation marks a support without a citation.
	NoCitation int64 = -1
)

// Visibility controls who can discover a network.
type Visibility string

const (
	VisibilityPublic       Visibility = "PUBLIC"
	VisibilityDiscoverable Visibility = "DISCOVERABLE"
	VisibilityPrivate      Visibility = "PRIVATE"
)

// OrDefault returns v, or PRIVATE when v is unset.
func (v Visibility) OrDefault() Visibility {
	if v == "" {
		return VisibilityPrivate
	}
	return v
}

// Property is a typed, searchable annotation. PredicateID references a base
// term of the same snapshot; PredicateString is the literal predicate name.
type Property struct {
	PredicateID     int64  `json:"predicateId"`
	PredicateString string `json:"predicateString" validate:"required"`
	Value           string `json:"value"`
	DataType        string `json:"dataType,omitempty"`
}

// SimpleProperty is a display-only annotation, copied verbatim.
type SimpleProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Annotations groups the two property lists every annotated entity carries.
type Annotations struct {
	Properties             []Property       `json:"properties,omitempty" validate:"dive"`
	PresentationProperties []SimpleProperty `json:"presentationProperties,omitempty"`
}

type Namespace struct {
	ID     int64  `json:"id"`
	Prefix string `json:"prefix,omitempty"`
	URI    string `json:"uri,omitempty"`
	Annotations
}

type BaseTerm struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	NamespaceID int64  `json:"namespaceId"`
}

// HasNamespace reports whether the term references a namespace.
func (t *BaseTerm) HasNamespace() bool {
	return t.NamespaceID > 0
}

type Citation struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title,omitempty"`
	IdType       string   `json:"idType,omitempty"`
	Identifier   string   `json:"identifier,omitempty"`
	Contributors []string `json:"contributors,omitempty"`
	Annotations
}

type Support struct {
	ID         int64  `json:"id"`
	Text       string `json:"text,omitempty"`
	CitationID int64  `json:"citationId"`
	Annotations
}

// HasCitation reports whether the support references a citation.
func (s *Support) HasCitation() bool {
	return s.CitationID != NoCitation
}

// ReifiedEdgeTerm turns an edge into a term so it can be referenced.
type ReifiedEdgeTerm struct {
	ID     int64 `json:"id"`
	EdgeID int64 `json:"edgeId"`
}

// FunctionTerm is a function application. FunctionTermID names the function
// (a base term). ParameterIDs are ordered and may reference base terms,
// function terms or reified-edge terms.
type FunctionTerm struct {
	ID             int64   `json:"id"`
	FunctionTermID int64   `json:"functionTermId"`
	ParameterIDs   []int64 `json:"parameterIds,omitempty"`
}

type Node struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name,omitempty"`
	Represents   *TermRef `json:"represents,omitempty"`
	Aliases      []int64  `json:"aliases,omitempty"`
	RelatedTerms []int64  `json:"relatedTerms,omitempty"`
	CitationIDs  []int64  `json:"citationIds,omitempty"`
	SupportIDs   []int64  `json:"supportIds,omitempty"`
	Annotations
}

type Edge struct {
	ID          int64   `json:"id"`
	SubjectID   int64   `json:"subjectId"`
	ObjectID    int64   `json:"objectId"`
	PredicateID int64   `json:"predicateId"`
	CitationIDs []int64 `json:"citationIds,omitempty"`
	SupportIDs  []int64 `json:"supportIds,omitempty"`
	Annotations
}

// NetworkSummary describes a network without its content.
type NetworkSummary struct {
	ExternalID       uuid.UUID  `json:"externalId"`
	Name             string     `json:"name" validate:"required"`
	Description      string     `json:"description,omitempty"`
	Version          string     `json:"version,omitempty"`
	Visibility       Visibility `json:"visibility,omitempty" validate:"omitempty,oneof=PUBLIC DISCOVERABLE PRIVATE"`
	NodeCount        int        `json:"nodeCount"`
	EdgeCount        int        `json:"edgeCount"`
	IsComplete       bool       `json:"isComplete"`
	IsLocked         bool       `json:"isLocked"`
	IsDeleted        bool       `json:"isDeleted"`
	Owner            string     `json:"owner,omitempty"`
	URI              string     `json:"uri,omitempty"`
	SourceFormat     string     `json:"sourceFormat,omitempty"`
	CreationTime     time.Time  `json:"creationTime"`
	ModificationTime time.Time  `json:"modificationTime"`
	Annotations
}

// Network is a full snapshot.
type Network struct {
	NetworkSummary

	Namespaces       map[int64]*Namespace       `json:"namespaces,omitempty" validate:"dive"`
	BaseTerms        map[int64]*BaseTerm        `json:"baseTerms,omitempty"`
	Citations        map[int64]*Citation        `json:"citations,omitempty" validate:"dive"`
	Supports         map[int64]*Support         `json:"supports,omitempty" validate:"dive"`
	ReifiedEdgeTerms map[int64]*ReifiedEdgeTerm `json:"reifiedEdgeTerms,omitempty"`
	FunctionTerms    map[int64]*FunctionTerm    `json:"functionTerms,omitempty"`
	Nodes            map[int64]*Node            `json:"nodes,omitempty" validate:"dive"`
	Edges            map[int64]*Edge            `json:"edges,omitempty" validate:"dive"`
}

// NewNetwork returns an empty snapshot with every map allocated.
func NewNetwork(name string) *Network {
	n := &Network{NetworkSummary: NetworkSummary{Name: name}}
	n.ensureMaps()
	return n
}

func (n *Network) ensureMaps() {
	if n.Namespaces == nil {
		n.Namespaces = make(map[int64]*Namespace)
	}
	if n.BaseTerms == nil {
		n.BaseTerms = make(map[int64]*BaseTerm)
	}
	if n.Citations == nil {
		n.Citations = make(map[int64]*Citation)
	}
	if n.Supports == nil {
		n.Supports = make(map[int64]*Support)
	}
	if n.ReifiedEdgeTerms == nil {
		n.ReifiedEdgeTerms = make(map[int64]*ReifiedEdgeTerm)
	}
	if n.FunctionTerms == nil {
		n.FunctionTerms = make(map[int64]*FunctionTerm)
	}
	if n.Nodes == nil {
		n.Nodes = make(map[int64]*Node)
	}
	if n.Edges == nil {
		n.Edges = make(map[int64]*Edge)
	}
}

// SortedIDs returns the keys of m in ascending order.
//
// The clone engine walks every collection in this order so that identifier
// allocation is reproducible for a given snapshot.
func SortedIDs[V any](m map[int64]V) []int64 {
	return slices.Sorted(maps.Keys(m))
}
