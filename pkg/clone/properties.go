package clone

import (
	"fmt"
	"log"
	"strings"

	"github.com/ndexbio/ndexgraph/pkg/convert"
	"github.com/ndexbio/ndexgraph/pkg/model"
	"github.com/ndexbio/ndexgraph/pkg/ndexdb"
	"github.com/ndexbio/ndexgraph/pkg/storage"
)

// replicateAllProperties copies the annotations of every cloned entity and
// of the network itself. It runs after all base terms exist so predicate IDs
// resolve against the complete base-term table.
func (c *cloneContext) replicateAllProperties() error {
	for _, id := range model.SortedIDs(c.src.Namespaces) {
		if err := c.replicateFor(c.remap.namespaces, id, c.src.Namespaces[id].Annotations); err != nil {
			return err
		}
	}
	for _, id := range model.SortedIDs(c.src.Citations) {
		if err := c.replicateFor(c.remap.citations, id, c.src.Citations[id].Annotations); err != nil {
			return err
		}
	}
	for _, id := range model.SortedIDs(c.src.Supports) {
		if err := c.replicateFor(c.remap.supports, id, c.src.Supports[id].Annotations); err != nil {
			return err
		}
	}
	for _, id := range model.SortedIDs(c.src.Nodes) {
		if err := c.replicateFor(c.remap.nodes, id, c.src.Nodes[id].Annotations); err != nil {
			return err
		}
	}
	for _, id := range model.SortedIDs(c.src.Edges) {
		if err := c.replicateFor(c.remap.edges, id, c.src.Edges[id].Annotations); err != nil {
			return err
		}
	}

	_, err := c.replicateProperties(c.network, c.networkProps, c.src.PresentationProperties)
	return err
}

func (c *cloneContext) replicateFor(t *remapTable, oldID int64, a model.Annotations) error {
	if len(a.Properties) == 0 && len(a.PresentationProperties) == 0 {
		return nil
	}
	target, err := t.resolve(oldID, "properties")
	if err != nil {
		return err
	}
	if _, err := c.replicateProperties(target, a.Properties, a.PresentationProperties); err != nil {
		return err
	}
	return c.step()
}

// replicateProperties attaches props to target with their predicates
// translated through the base-term table, and stores the presentation
// properties verbatim. It returns the new property descriptors.
func (c *cloneContext) replicateProperties(target storage.NodeID, props []model.Property, presentation []model.SimpleProperty) ([]model.Property, error) {
	out := make([]model.Property, 0, len(props))
	for _, p := range props {
		predicate, err := c.predicateFor(p)
		if err != nil {
			return nil, err
		}
		created, err := c.db.AttachProperty(c.tx, target, predicate, p)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}

	if len(presentation) > 0 {
		encoded, err := ndexdb.EncodePresentation(presentation)
		if err != nil {
			return nil, err
		}
		node, err := c.tx.GetNode(target)
		if err != nil {
			return nil, err
		}
		node.Properties[ndexdb.PropPresentationProps] = encoded
		if err := c.tx.UpdateNode(node); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// predicateFor returns the cloned base term a property's predicate maps to.
//
// A mapped predicate must carry the same name as the property's predicate
// string; anything else means the source data is corrupted. An unmapped
// predicate gets a new base term named by the predicate string.
func (c *cloneContext) predicateFor(p model.Property) (storage.NodeID, error) {
	if p.PredicateID <= 0 {
		if id, ok := c.predicates[p.PredicateString]; ok {
			return id, nil
		}
		id, err := c.createPredicate(p.PredicateString)
		if err != nil {
			return "", err
		}
		c.predicates[p.PredicateString] = id
		return id, nil
	}

	if id, ok := c.remap.baseTerms.get(p.PredicateID); ok {
		term, err := c.tx.GetNode(id)
		if err != nil {
			return "", err
		}
		name, _ := convert.ToString(term.Properties[ndexdb.PropName])
		if !predicateMatches(name, p.PredicateString) {
			return "", fmt.Errorf("%w: predicate %d is term %q but the property says %q",
				ErrCorruptedProperty, p.PredicateID, name, p.PredicateString)
		}
		return id, nil
	}

	log.Printf("[Clone] Warning: property predicate %d (%q) is not a base term of the network, creating one",
		p.PredicateID, p.PredicateString)
	id, err := c.createPredicate(p.PredicateString)
	if err != nil {
		return "", err
	}
	if err := c.remap.baseTerms.put(p.PredicateID, id); err != nil {
		return "", err
	}
	return id, nil
}

// createPredicate creates a namespace-less base term owned by the network.
func (c *cloneContext) createPredicate(name string) (storage.NodeID, error) {
	id, err := c.db.CreateEntity(c.tx, ndexdb.LabelBaseTerm, map[string]any{ndexdb.PropName: name})
	if err != nil {
		return "", err
	}
	if err := c.db.Link(c.tx, c.network, id, ndexdb.RelNetworkBaseTerms, nil); err != nil {
		return "", err
	}
	c.created[KindBaseTerm]++
	return id, nil
}

// predicateMatches reports whether a term named name can stand for the
// predicate string. A qualified predicate "prefix:name" matches on its local
// name.
func predicateMatches(name, predicate string) bool {
	if name == predicate {
		return true
	}
	if i := strings.Index(predicate, ":"); i >= 0 {
		return name == predicate[i+1:]
	}
	return false
}
