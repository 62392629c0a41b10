package clone

import (
	"fmt"

	"github.com/ndexbio/ndexgraph/pkg/model"
	"github.com/ndexbio/ndexgraph/pkg/storage"
)

// Kind names an entity collection of a snapshot.
type Kind string

const (
	KindNamespace       Kind = "namespace"
	KindBaseTerm        Kind = "baseTerm"
	KindCitation        Kind = "citation"
	KindSupport         Kind = "support"
	KindReifiedEdgeTerm Kind = "reifiedEdgeTerm"
	KindFunctionTerm    Kind = "functionTerm"
	KindNode            Kind = "node"
	KindEdge            Kind = "edge"
)

// termKinds maps the TermRef tags onto remap table kinds.
var termKinds = map[model.TermKind]Kind{
	model.BaseTermKind:        KindBaseTerm,
	model.FunctionTermKind:    KindFunctionTerm,
	model.ReifiedEdgeTermKind: KindReifiedEdgeTerm,
}

// remapTable maps snapshot-local IDs of one kind to the storage IDs of their
// clones. Entries are only ever added.
type remapTable struct {
	kind Kind
	ids  map[int64]storage.NodeID
}

func newRemapTable(kind Kind) *remapTable {
	return &remapTable{kind: kind, ids: make(map[int64]storage.NodeID)}
}

func (t *remapTable) get(oldID int64) (storage.NodeID, bool) {
	id, ok := t.ids[oldID]
	return id, ok
}

// put records oldID -> newID. Re-recording the same pair is a no-op;
// recording a different newID for a mapped oldID fails.
func (t *remapTable) put(oldID int64, newID storage.NodeID) error {
	if existing, ok := t.ids[oldID]; ok {
		if existing == newID {
			return nil
		}
		return fmt.Errorf("%w: %s %d already maps to %s, not %s", ErrMappingConflict, t.kind, oldID, existing, newID)
	}
	t.ids[oldID] = newID
	return nil
}

// resolve is get that fails with a *ReferenceError.
func (t *remapTable) resolve(oldID int64, from string) (storage.NodeID, error) {
	if id, ok := t.ids[oldID]; ok {
		return id, nil
	}
	return "", &ReferenceError{Kind: t.kind, OldID: oldID, From: from}
}

func (t *remapTable) len() int { return len(t.ids) }

// remapTables holds one table per entity kind.
type remapTables struct {
	namespaces       *remapTable
	baseTerms        *remapTable
	citations        *remapTable
	supports         *remapTable
	reifiedEdgeTerms *remapTable
	functionTerms    *remapTable
	nodes            *remapTable
	edges            *remapTable
}

func newRemapTables() *remapTables {
	return &remapTables{
		namespaces:       newRemapTable(KindNamespace),
		baseTerms:        newRemapTable(KindBaseTerm),
		citations:        newRemapTable(KindCitation),
		supports:         newRemapTable(KindSupport),
		reifiedEdgeTerms: newRemapTable(KindReifiedEdgeTerm),
		functionTerms:    newRemapTable(KindFunctionTerm),
		nodes:            newRemapTable(KindNode),
		edges:            newRemapTable(KindEdge),
	}
}

// table returns the remap table for kind.
func (r *remapTables) table(kind Kind) *remapTable {
	switch kind {
	case KindNamespace:
		return r.namespaces
	case KindBaseTerm:
		return r.baseTerms
	case KindCitation:
		return r.citations
	case KindSupport:
		return r.supports
	case KindReifiedEdgeTerm:
		return r.reifiedEdgeTerms
	case KindFunctionTerm:
		return r.functionTerms
	case KindNode:
		return r.nodes
	case KindEdge:
		return r.edges
	}
	return nil
}

// resolveTerm resolves a tagged term reference with a single lookup in the
// table its kind names.
func (r *remapTables) resolveTerm(ref model.TermRef, from string) (storage.NodeID, error) {
	kind, ok := termKinds[ref.Kind]
	if !ok {
		return "", fmt.Errorf("%w: %s has unknown term kind %q", ErrValidation, from, ref.Kind)
	}
	return r.table(kind).resolve(ref.ID, from)
}

// resolveParameter resolves an untagged function argument: base terms first,
// then function terms, then reified-edge terms.
func (r *remapTables) resolveParameter(oldID int64, from string) (storage.NodeID, error) {
	for _, t := range []*remapTable{r.baseTerms, r.functionTerms, r.reifiedEdgeTerms} {
		if id, ok := t.get(oldID); ok {
			return id, nil
		}
	}
	return "", &ReferenceError{Kind: "term", OldID: oldID, From: from}
}
