package ndexdb

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/ndexbio/ndexgraph/pkg/convert"
	"github.com/ndexbio/ndexgraph/pkg/model"
	"github.com/ndexbio/ndexgraph/pkg/storage"
)

// CitationFromNode decodes a citation entity. ID is the entity's own
// identifier; its attached properties are not read.
func CitationFromNode(n *storage.Node) (*model.Citation, error) {
	id, err := strconv.ParseInt(string(n.ID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("citation %s: %w", n.ID, err)
	}
	c := &model.Citation{ID: id}
	c.Title, _ = convert.ToString(n.Properties[PropTitle])
	c.IdType, _ = convert.ToString(n.Properties[PropIdType])
	c.Identifier, _ = convert.ToString(n.Properties[PropIdentifier])
	c.Contributors = convert.ToStringSlice(n.Properties[PropContributors])
	return c, nil
}

// NetworkCitations returns the citations owned by the network holding id,
// ordered by identifier, with their properties.
func (db *DB) NetworkCitations(ctx context.Context, id uuid.UUID) ([]*model.Citation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := db.BeginTransaction()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	network, err := NetworkByUUID(tx, id)
	if err != nil {
		return nil, err
	}
	ids, err := Related(tx, network.ID, RelNetworkCitations)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Citation, 0, len(ids))
	for _, cid := range ids {
		node, err := tx.GetNode(cid)
		if err != nil {
			return nil, err
		}
		c, err := CitationFromNode(node)
		if err != nil {
			return nil, err
		}
		if c.Properties, err = ReadProperties(tx, node.ID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *model.Citation) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}
