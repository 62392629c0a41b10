package clone

import (
	"fmt"
	"log"

	"github.com/ndexbio/ndexgraph/pkg/model"
	"github.com/ndexbio/ndexgraph/pkg/ndexdb"
)

// build runs the entity phases of a clone inside c.tx once the network
// record exists: every collection in dependency order, then the deferred
// term wiring and finally the properties. The record is left locked and
// incomplete.
func (c *cloneContext) build() error {
	phases := []struct {
		name string
		fn   func() error
	}{
		{"namespaces", c.cloneNamespaces},
		{"base terms", c.cloneBaseTerms},
		{"citations", c.cloneCitations},
		{"supports", c.cloneSupports},
		{"term placeholders", c.createTermPlaceholders},
		{"nodes", c.cloneNodes},
		{"edges", c.cloneEdges},
		{"term wiring", c.wireTerms},
		{"properties", c.replicateAllProperties},
	}
	for _, p := range phases {
		if err := c.checkpoint(p.name); err != nil {
			return err
		}
		if err := p.fn(); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return nil
}

// createNetwork writes the locked, incomplete network record.
func (c *cloneContext) createNetwork() error {
	src := c.src
	nodeCount, edgeCount := len(src.Nodes), len(src.Edges)
	if (src.NodeCount != 0 && src.NodeCount != nodeCount) || (src.EdgeCount != 0 && src.EdgeCount != edgeCount) {
		log.Printf("[Clone] Warning: %q declares %d nodes / %d edges but carries %d / %d; using the carried counts",
			src.Name, src.NodeCount, src.EdgeCount, nodeCount, edgeCount)
	}

	props, err := ndexdb.NetworkRecord(&model.NetworkSummary{
		ExternalID:       c.externalID,
		Name:             src.Name,
		Description:      src.Description,
		Version:          src.Version,
		Visibility:       src.Visibility.OrDefault(),
		NodeCount:        nodeCount,
		EdgeCount:        edgeCount,
		IsComplete:       false,
		IsLocked:         true,
		URI:              c.db.NetworkURI(c.externalID),
		SourceFormat:     c.sourceFormat,
		CreationTime:     c.now,
		ModificationTime: c.now,
	})
	if err != nil {
		return err
	}
	c.network, err = c.db.CreateEntity(c.tx, ndexdb.LabelNetwork, props)
	return err
}

// cloneNamespaces resolves-or-creates each namespace by (prefix, URI).
// Duplicate non-empty prefixes were rejected by validate.
func (c *cloneContext) cloneNamespaces() error {
	for _, id := range model.SortedIDs(c.src.Namespaces) {
		ns := c.src.Namespaces[id]
		key := namespaceKey{prefix: ns.Prefix, uri: ns.URI}
		if existing, ok := c.namespaces[key]; ok {
			if err := c.remap.namespaces.put(id, existing); err != nil {
				return err
			}
			continue
		}

		props := map[string]any{}
		if ns.Prefix != "" {
			props[ndexdb.PropPrefix] = ns.Prefix
		}
		if ns.URI != "" {
			props[ndexdb.PropNamespaceURI] = ns.URI
		}
		newID, err := c.createOwned(KindNamespace, id, ndexdb.LabelNamespace, ndexdb.RelNetworkNamespaces, props)
		if err != nil {
			return err
		}
		c.namespaces[key] = newID
	}
	return nil
}

func (c *cloneContext) cloneBaseTerms() error {
	for _, id := range model.SortedIDs(c.src.BaseTerms) {
		term := c.src.BaseTerms[id]
		newID, err := c.createOwned(KindBaseTerm, id, ndexdb.LabelBaseTerm, ndexdb.RelNetworkBaseTerms,
			map[string]any{ndexdb.PropName: term.Name})
		if err != nil {
			return err
		}
		if !term.HasNamespace() {
			continue
		}
		ns, err := c.remap.namespaces.resolve(term.NamespaceID, fmt.Sprintf("baseTerm %d", id))
		if err != nil {
			return err
		}
		if err := c.db.Link(c.tx, newID, ns, ndexdb.RelBaseTermNS, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *cloneContext) cloneCitations() error {
	for _, id := range model.SortedIDs(c.src.Citations) {
		cit := c.src.Citations[id]
		props := map[string]any{ndexdb.PropTitle: cit.Title}
		if cit.IdType != "" {
			props[ndexdb.PropIdType] = cit.IdType
		}
		if cit.Identifier != "" {
			props[ndexdb.PropIdentifier] = cit.Identifier
		}
		if len(cit.Contributors) > 0 {
			props[ndexdb.PropContributors] = cit.Contributors
		}
		if _, err := c.createOwned(KindCitation, id, ndexdb.LabelCitation, ndexdb.RelNetworkCitations, props); err != nil {
			return err
		}
	}
	return nil
}

func (c *cloneContext) cloneSupports() error {
	for _, id := range model.SortedIDs(c.src.Supports) {
		sup := c.src.Supports[id]
		newID, err := c.createOwned(KindSupport, id, ndexdb.LabelSupport, ndexdb.RelNetworkSupports,
			map[string]any{ndexdb.PropText: sup.Text})
		if err != nil {
			return err
		}
		if !sup.HasCitation() {
			continue
		}
		cit, err := c.remap.citations.resolve(sup.CitationID, fmt.Sprintf("support %d", id))
		if err != nil {
			return err
		}
		if err := c.db.Link(c.tx, newID, cit, ndexdb.RelSupportCitation, nil); err != nil {
			return err
		}
	}
	return nil
}

// createTermPlaceholders creates the reified-edge and function term entities.
// Their relationships point at edges and other terms, so wireTerms adds them
// once everything exists.
func (c *cloneContext) createTermPlaceholders() error {
	for _, id := range model.SortedIDs(c.src.ReifiedEdgeTerms) {
		if _, err := c.createOwned(KindReifiedEdgeTerm, id, ndexdb.LabelReifiedEdgeTerm, ndexdb.RelNetworkReifiedEdgeTerms, nil); err != nil {
			return err
		}
	}
	for _, id := range model.SortedIDs(c.src.FunctionTerms) {
		if _, err := c.createOwned(KindFunctionTerm, id, ndexdb.LabelFunctionTerm, ndexdb.RelNetworkFunctionTerms, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *cloneContext) cloneNodes() error {
	for _, id := range model.SortedIDs(c.src.Nodes) {
		node := c.src.Nodes[id]
		props := map[string]any{}
		if node.Name != "" {
			props[ndexdb.PropName] = node.Name
		}
		newID, err := c.createOwned(KindNode, id, ndexdb.LabelNode, ndexdb.RelNetworkNodes, props)
		if err != nil {
			return err
		}

		desc := fmt.Sprintf("node %d", id)
		if node.Represents != nil {
			term, err := c.remap.resolveTerm(*node.Represents, desc+" represents")
			if err != nil {
				return err
			}
			if err := c.db.Link(c.tx, newID, term, ndexdb.RelRepresents, nil); err != nil {
				return err
			}
		}
		if err := c.linkAll(newID, node.Aliases, c.remap.baseTerms, ndexdb.RelAlias, desc+" alias"); err != nil {
			return err
		}
		if err := c.linkAll(newID, node.RelatedTerms, c.remap.baseTerms, ndexdb.RelRelateTo, desc+" related term"); err != nil {
			return err
		}
		if err := c.linkAll(newID, node.CitationIDs, c.remap.citations, ndexdb.RelCitations, desc+" citation"); err != nil {
			return err
		}
		if err := c.linkAll(newID, node.SupportIDs, c.remap.supports, ndexdb.RelSupports, desc+" support"); err != nil {
			return err
		}
	}
	return nil
}

func (c *cloneContext) cloneEdges() error {
	for _, id := range model.SortedIDs(c.src.Edges) {
		edge := c.src.Edges[id]
		desc := fmt.Sprintf("edge %d", id)

		subject, err := c.remap.nodes.resolve(edge.SubjectID, desc+" subject")
		if err != nil {
			return err
		}
		object, err := c.remap.nodes.resolve(edge.ObjectID, desc+" object")
		if err != nil {
			return err
		}
		predicate, err := c.remap.baseTerms.resolve(edge.PredicateID, desc+" predicate")
		if err != nil {
			return err
		}

		newID, err := c.createOwned(KindEdge, id, ndexdb.LabelEdge, ndexdb.RelNetworkEdges, nil)
		if err != nil {
			return err
		}
		if err := c.db.Link(c.tx, subject, newID, ndexdb.RelEdgeSubject, nil); err != nil {
			return err
		}
		if err := c.db.Link(c.tx, newID, object, ndexdb.RelEdgeObject, nil); err != nil {
			return err
		}
		if err := c.db.Link(c.tx, newID, predicate, ndexdb.RelEdgePredicate, nil); err != nil {
			return err
		}
		if err := c.linkAll(newID, edge.CitationIDs, c.remap.citations, ndexdb.RelCitations, desc+" citation"); err != nil {
			return err
		}
		if err := c.linkAll(newID, edge.SupportIDs, c.remap.supports, ndexdb.RelSupports, desc+" support"); err != nil {
			return err
		}
	}
	return nil
}

// wireTerms attaches reified-edge terms to their edges and function terms to
// their name and ordered arguments.
func (c *cloneContext) wireTerms() error {
	for _, id := range model.SortedIDs(c.src.ReifiedEdgeTerms) {
		term := c.src.ReifiedEdgeTerms[id]
		desc := fmt.Sprintf("reifiedEdgeTerm %d", id)
		newID, err := c.remap.reifiedEdgeTerms.resolve(id, desc)
		if err != nil {
			return err
		}
		edge, err := c.remap.edges.resolve(term.EdgeID, desc+" edge")
		if err != nil {
			return err
		}
		if err := c.db.Link(c.tx, newID, edge, ndexdb.RelReifiedEdge, nil); err != nil {
			return err
		}
		if err := c.step(); err != nil {
			return err
		}
	}

	for _, id := range model.SortedIDs(c.src.FunctionTerms) {
		fn := c.src.FunctionTerms[id]
		desc := fmt.Sprintf("functionTerm %d", id)
		newID, err := c.remap.functionTerms.resolve(id, desc)
		if err != nil {
			return err
		}
		name, err := c.remap.baseTerms.resolve(fn.FunctionTermID, desc+" function")
		if err != nil {
			return err
		}
		if err := c.db.Link(c.tx, newID, name, ndexdb.RelFunctionName, nil); err != nil {
			return err
		}
		for pos, param := range fn.ParameterIDs {
			arg, err := c.remap.resolveParameter(param, fmt.Sprintf("%s parameter %d", desc, pos))
			if err != nil {
				return err
			}
			if err := c.db.Link(c.tx, newID, arg, ndexdb.RelFunctionParam, map[string]any{ndexdb.PropPosition: pos}); err != nil {
				return err
			}
		}
		if err := c.step(); err != nil {
			return err
		}
	}
	return nil
}
