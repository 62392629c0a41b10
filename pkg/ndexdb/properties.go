package ndexdb

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/ndexbio/ndexgraph/pkg/convert"
	"github.com/ndexbio/ndexgraph/pkg/model"
	"github.com/ndexbio/ndexgraph/pkg/storage"
)

// AttachProperty stores p on entity as an ndexProperty linked to the
// predicate base term. PredicateID of the returned descriptor is the
// predicate's persistent identifier.
func (db *DB) AttachProperty(tx *storage.BadgerTransaction, entity, predicate storage.NodeID, p model.Property) (model.Property, error) {
	props := map[string]any{
		PropPredicateString: p.PredicateString,
		PropValue:           p.Value,
	}
	if p.DataType != "" {
		props[PropDataType] = p.DataType
	}

	propID, err := db.CreateEntity(tx, LabelProperty, props)
	if err != nil {
		return model.Property{}, err
	}
	if err := db.Link(tx, entity, propID, RelNdexProps, nil); err != nil {
		return model.Property{}, err
	}
	if err := db.Link(tx, propID, predicate, RelPropPredicate, nil); err != nil {
		return model.Property{}, err
	}

	predicateID, err := predicate.Int64()
	if err != nil {
		return model.Property{}, err
	}
	p.PredicateID = predicateID
	return p, nil
}

// ReadProperties returns the properties attached to entity, oldest first.
func ReadProperties(tx *storage.BadgerTransaction, entity storage.NodeID) ([]model.Property, error) {
	ids, err := Related(tx, entity, RelNdexProps)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(ids, compareIDs)

	out := make([]model.Property, 0, len(ids))
	for _, id := range ids {
		node, err := tx.GetNode(id)
		if err != nil {
			return nil, fmt.Errorf("reading property %s of %s: %w", id, entity, err)
		}
		var p model.Property
		p.PredicateString, _ = convert.ToString(node.Properties[PropPredicateString])
		p.Value, _ = convert.ToString(node.Properties[PropValue])
		p.DataType, _ = convert.ToString(node.Properties[PropDataType])

		predicates, err := Related(tx, id, RelPropPredicate)
		if err != nil {
			return nil, err
		}
		if len(predicates) > 0 {
			p.PredicateID, _ = predicates[0].Int64()
		}
		out = append(out, p)
	}
	return out, nil
}

// EncodePresentation renders presentation properties for storage on an
// entity. Empty input yields "".
func EncodePresentation(props []model.SimpleProperty) (string, error) {
	if len(props) == 0 {
		return "", nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("encoding presentation properties: %w", err)
	}
	return string(data), nil
}

// compareIDs orders storage identifiers numerically. Identifiers that are
// not numeric sort after numeric ones, by string.
func compareIDs(a, b storage.NodeID) int {
	ai, aerr := a.Int64()
	bi, berr := b.Int64()
	switch {
	case aerr == nil && berr == nil:
		return cmp.Compare(ai, bi)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return cmp.Compare(a, b)
}
