package ndexdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ndexbio/ndexgraph/pkg/convert"
	"github.com/ndexbio/ndexgraph/pkg/model"
	"github.com/ndexbio/ndexgraph/pkg/storage"
)

// Network record errors
var (
	ErrNetworkNotFound = errors.New("network not found")
	ErrNetworkLocked   = errors.New("network is locked")
)

// NetworkURI builds the canonical URI of a network.
func (db *DB) NetworkURI(id uuid.UUID) string {
	return db.config.URIPrefix + "/network/" + id.String()
}

// NetworkRecord returns the stored properties of a network record built from s.
//
// cacheId and readOnlyCommitId start at -1 (no cache, no read-only commit).
func NetworkRecord(s *model.NetworkSummary) (map[string]any, error) {
	props := map[string]any{
		PropUUID:             s.ExternalID.String(),
		PropName:             s.Name,
		PropVisibility:       string(s.Visibility.OrDefault()),
		PropNodeCount:        s.NodeCount,
		PropEdgeCount:        s.EdgeCount,
		PropIsComplete:       s.IsComplete,
		PropIsLocked:         s.IsLocked,
		PropIsDeleted:        s.IsDeleted,
		PropCreatedTime:      formatTime(s.CreationTime),
		PropModifiedTime:     formatTime(s.ModificationTime),
		PropURI:              s.URI,
		PropReadOnlyCommitID: int64(-1),
		PropCacheID:          int64(-1),
	}
	if s.Description != "" {
		props[PropDescription] = s.Description
	}
	if s.Version != "" {
		props[PropVersion] = s.Version
	}
	if s.SourceFormat != "" {
		props[PropSourceFormat] = s.SourceFormat
	}
	presentation, err := EncodePresentation(s.PresentationProperties)
	if err != nil {
		return nil, err
	}
	if presentation != "" {
		props[PropPresentationProps] = presentation
	}
	return props, nil
}

// SummaryFromNode decodes a network record. Properties and Owner are not
// filled; see DB.GetNetwork.
func SummaryFromNode(n *storage.Node) (*model.NetworkSummary, error) {
	if !n.HasLabel(LabelNetwork) {
		return nil, fmt.Errorf("node %s is not a network record", n.ID)
	}
	p := n.Properties

	uuidStr, _ := convert.ToString(p[PropUUID])
	externalID, err := uuid.Parse(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("network %s: bad UUID %q: %w", n.ID, uuidStr, err)
	}

	s := &model.NetworkSummary{ExternalID: externalID}
	s.Name, _ = convert.ToString(p[PropName])
	s.Description, _ = convert.ToString(p[PropDescription])
	s.Version, _ = convert.ToString(p[PropVersion])
	s.URI, _ = convert.ToString(p[PropURI])
	s.SourceFormat, _ = convert.ToString(p[PropSourceFormat])
	vis, _ := convert.ToString(p[PropVisibility])
	s.Visibility = model.Visibility(vis).OrDefault()
	s.NodeCount = int(convert.ToInt64Or(p[PropNodeCount], 0))
	s.EdgeCount = int(convert.ToInt64Or(p[PropEdgeCount], 0))
	s.IsComplete, _ = convert.ToBool(p[PropIsComplete])
	s.IsLocked, _ = convert.ToBool(p[PropIsLocked])
	s.IsDeleted, _ = convert.ToBool(p[PropIsDeleted])
	s.CreationTime = parseTime(p[PropCreatedTime])
	s.ModificationTime = parseTime(p[PropModifiedTime])

	if raw, ok := convert.ToString(p[PropPresentationProps]); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.PresentationProperties); err != nil {
			return nil, fmt.Errorf("network %s: presentation properties: %w", n.ID, err)
		}
	}
	return s, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v any) time.Time {
	s, ok := convert.ToString(v)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// NetworkByUUID finds the network record currently holding id, deleted
// records included.
func NetworkByUUID(tx *storage.BadgerTransaction, id uuid.UUID) (*storage.Node, error) {
	node, err := tx.FindNodeByIndex(LabelNetwork, PropUUID, id.String())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up network %s: %w", id, err)
	}
	return node, nil
}

// GetNetwork returns the summary of the network holding id, with its
// properties and its first admin as Owner.
func (db *DB) GetNetwork(ctx context.Context, id uuid.UUID) (*model.NetworkSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := db.BeginTransaction()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	node, err := NetworkByUUID(tx, id)
	if err != nil {
		return nil, err
	}
	summary, err := SummaryFromNode(node)
	if err != nil {
		return nil, err
	}

	summary.Properties, err = ReadProperties(tx, node.ID)
	if err != nil {
		return nil, err
	}

	grants, err := tx.GetIncomingEdges(node.ID)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		if g.Type != RelAdmin {
			continue
		}
		account, err := tx.GetNode(g.StartNode)
		if err != nil {
			return nil, err
		}
		summary.Owner, _ = convert.ToString(account.Properties[PropAccountName])
		break
	}
	return summary, nil
}

// TryLockNetwork sets isLocked on the live record holding id if it is not
// already set.
//
// The read and the write happen in one transaction, so two callers racing
// for the same record cannot both succeed: the loser either sees the flag
// or fails to commit, and gets ErrNetworkLocked in both cases.
//
// A non-nil then runs inside the locking transaction with the record's node
// ID; if it fails the record stays unlocked. Whatever then writes commits
// atomically with the lock.
func (db *DB) TryLockNetwork(ctx context.Context, id uuid.UUID, then func(tx *storage.BadgerTransaction, network storage.NodeID) error) (storage.NodeID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tx, err := db.BeginTransaction()
	if err != nil {
		return "", err
	}

	node, err := NetworkByUUID(tx, id)
	if err != nil {
		tx.Rollback()
		return "", err
	}
	if deleted, _ := convert.ToBool(node.Properties[PropIsDeleted]); deleted {
		tx.Rollback()
		return "", fmt.Errorf("%w: %s is deleted", ErrNetworkNotFound, id)
	}
	if locked, _ := convert.ToBool(node.Properties[PropIsLocked]); locked {
		tx.Rollback()
		return "", fmt.Errorf("%w: %s", ErrNetworkLocked, id)
	}

	node.Properties[PropIsLocked] = true
	if err := tx.UpdateNode(node); err != nil {
		tx.Rollback()
		return "", err
	}
	if then != nil {
		if err := then(tx, node.ID); err != nil {
			tx.Rollback()
			return "", err
		}
	}
	if err := tx.Commit(); err != nil {
		if errors.Is(err, storage.ErrTransactionConflict) {
			return "", fmt.Errorf("%w: %s", ErrNetworkLocked, id)
		}
		return "", err
	}
	return node.ID, nil
}

// SetNetworkLocked sets isLocked on nodeID inside tx. A missing record is
// not an error.
func SetNetworkLocked(tx *storage.BadgerTransaction, nodeID storage.NodeID, locked bool) error {
	node, err := tx.GetNode(nodeID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current, _ := convert.ToBool(node.Properties[PropIsLocked]); current == locked {
		return nil
	}
	node.Properties[PropIsLocked] = locked
	return tx.UpdateNode(node)
}

// DeleteNetwork removes the network record holding id and every entity it
// owns, DeleteBatch entities per transaction, committing early when a
// transaction nears Badger's limits. The record itself goes last so
// an interrupted deletion can be resumed by calling DeleteNetwork again.
//
// An unknown id is not an error. Returns the number of entities removed.
func (db *DB) DeleteNetwork(ctx context.Context, id uuid.UUID) (int, error) {
	var networkID storage.NodeID
	var owned []storage.NodeID

	err := func() error {
		tx, err := db.BeginTransaction()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		node, err := NetworkByUUID(tx, id)
		if err != nil {
			return err
		}
		networkID = node.ID

		edges, err := tx.GetOutgoingEdges(node.ID)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if isOwnership(e.Type) || e.Type == RelNdexProps {
				owned = append(owned, e.EndNode)
			}
		}
		return nil
	}()
	if errors.Is(err, ErrNetworkNotFound) {
		log.Printf("[NDEx] Network %s already deleted", id)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	batch := db.config.DeleteBatch
	for start := 0; start < len(owned); start += batch {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		end := min(start+batch, len(owned))

		n, err := db.deleteEntities(owned[start:end])
		if err != nil {
			return removed, fmt.Errorf("deleting network %s: %w", id, err)
		}
		removed += n
	}

	err = db.storage.Update(func(tx *storage.BadgerTransaction) error {
		n, err := deleteEntity(tx, networkID)
		removed += n
		return err
	})
	if err != nil {
		return removed, fmt.Errorf("deleting network record %s: %w", id, err)
	}

	log.Printf("[NDEx] Deleted network %s (%d entities)", id, removed)
	return removed, nil
}

// deleteEntities removes ids in a bulk transaction, so an entity with many
// relationships cannot push a batch past Badger's limits.
func (db *DB) deleteEntities(ids []storage.NodeID) (int, error) {
	tx, err := db.storage.BeginBulkTransaction()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entity := range ids {
		n, err := deleteEntity(tx, entity)
		if err != nil {
			tx.Rollback()
			return removed, err
		}
		if _, err := tx.Checkpoint(); err != nil {
			return removed, err
		}
		removed += n
	}
	if err := tx.Commit(); err != nil {
		return removed, err
	}
	return removed, nil
}

// deleteEntity removes an entity together with its attached ndexProperty
// nodes. Already-missing entities count as zero.
func deleteEntity(tx *storage.BadgerTransaction, id storage.NodeID) (int, error) {
	props, err := Related(tx, id, RelNdexProps)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range props {
		if err := tx.DeleteNode(p); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return n, err
		} else if err == nil {
			n++
		}
	}
	if err := tx.DeleteNode(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return n, nil
		}
		return n, err
	}
	return n + 1, nil
}

func isOwnership(relType string) bool {
	for _, r := range OwnershipRelationships {
		if r == relType {
			return true
		}
	}
	return false
}
