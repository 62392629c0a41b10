package clone

import (
	"slices"

	"github.com/ndexbio/ndexgraph/pkg/ndexdb"
	"github.com/ndexbio/ndexgraph/pkg/storage"
)

type grant struct {
	account  storage.NodeID
	relation string
}

// copyPermissions grants every account holding admin, canEdit or canRead on
// source the same relation on target. Grants target already holds are not
// duplicated, so copying twice is harmless. Returns the number of grants
// created.
func copyPermissions(db *ndexdb.DB, tx *storage.BadgerTransaction, source, target storage.NodeID) (int, error) {
	existing, err := grantsOn(tx, target)
	if err != nil {
		return 0, err
	}
	wanted, err := grantsOn(tx, source)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, g := range wanted {
		if slices.Contains(existing, g) {
			continue
		}
		if err := db.Link(tx, g.account, target, g.relation, nil); err != nil {
			return created, err
		}
		existing = append(existing, g)
		created++
	}
	return created, nil
}

// grantsOn lists the permission grants held on network.
func grantsOn(tx *storage.BadgerTransaction, network storage.NodeID) ([]grant, error) {
	edges, err := tx.GetIncomingEdges(network)
	if err != nil {
		return nil, err
	}
	var out []grant
	for _, e := range edges {
		if slices.Contains(ndexdb.PermissionRelationships, e.Type) {
			out = append(out, grant{account: e.StartNode, relation: e.Type})
		}
	}
	return out, nil
}
