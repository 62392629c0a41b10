package clone

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ndexbio/ndexgraph/pkg/convert"
	"github.com/ndexbio/ndexgraph/pkg/ndexdb"
	"github.com/ndexbio/ndexgraph/pkg/storage"
)

// IntentState is the progress of a clone or update recorded durably between
// its transactions.
type IntentState string

const (
	// IntentBuilding: the build has not committed in full. For an update the
	// live record is locked. Once a batch has committed, targetNode names the
	// partial record.
	IntentBuilding IntentState = "building"
	// IntentBuilt: the rebuild committed, the swap has not.
	IntentBuilt IntentState = "built"
	// IntentSwapped: the swap committed, the deletion task may not be queued.
	IntentSwapped IntentState = "swapped"
)

// Intent record properties.
const (
	propIntentState        = "state"
	propIntentSource       = "sourceUUID"
	propIntentSourceNode   = "sourceNode"
	propIntentTargetNode   = "targetNode"
	propIntentTransitional = "transitionalUUID"
	propIntentCreated      = "createdTime"
)

// intent mirrors a cloneIntent record. A clone has no source.
type intent struct {
	id           storage.NodeID
	state        IntentState
	source       uuid.UUID
	sourceNode   storage.NodeID
	targetNode   storage.NodeID
	transitional uuid.UUID
	created      time.Time
}

// create stores the intent inside tx and sets its ID.
func (in *intent) create(db *ndexdb.DB, tx *storage.BadgerTransaction) error {
	props := map[string]any{
		propIntentState:   string(in.state),
		propIntentCreated: in.created.UTC().Format(time.RFC3339Nano),
	}
	if in.source != uuid.Nil {
		props[propIntentSource] = in.source.String()
	}
	if in.sourceNode != "" {
		props[propIntentSourceNode] = string(in.sourceNode)
	}
	if in.targetNode != "" {
		props[propIntentTargetNode] = string(in.targetNode)
	}
	id, err := db.CreateEntity(tx, ndexdb.LabelCloneIntent, props)
	if err != nil {
		return fmt.Errorf("recording clone intent: %w", err)
	}
	in.id = id
	return nil
}

// save writes the intent's current state inside tx.
func (in *intent) save(tx *storage.BadgerTransaction) error {
	node, err := tx.GetNode(in.id)
	if err != nil {
		return fmt.Errorf("clone intent %s: %w", in.id, err)
	}
	node.Properties[propIntentState] = string(in.state)
	if in.targetNode != "" {
		node.Properties[propIntentTargetNode] = string(in.targetNode)
	}
	if in.transitional != uuid.Nil {
		node.Properties[propIntentTransitional] = in.transitional.String()
	}
	return tx.UpdateNode(node)
}

// remove deletes the intent inside tx.
func (in *intent) remove(tx *storage.BadgerTransaction) error {
	if err := tx.DeleteNode(in.id); err != nil {
		return fmt.Errorf("removing clone intent %s: %w", in.id, err)
	}
	return nil
}

// deleteIntent removes the intent record. A missing record is not an error.
func deleteIntent(db *ndexdb.DB, id storage.NodeID) error {
	if id == "" {
		return nil
	}
	err := db.Storage().DeleteNode(id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("removing clone intent %s: %w", id, err)
	}
	return nil
}

// loadIntents returns every stored intent.
func loadIntents(db *ndexdb.DB) ([]*intent, error) {
	tx, err := db.BeginTransaction()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	nodes, err := tx.NodesByLabel(ndexdb.LabelCloneIntent, nil)
	if err != nil {
		return nil, err
	}
	out := make([]*intent, 0, len(nodes))
	for _, n := range nodes {
		in, err := intentFromNode(n)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func intentFromNode(n *storage.Node) (*intent, error) {
	p := n.Properties
	in := &intent{id: n.ID}

	state, _ := convert.ToString(p[propIntentState])
	in.state = IntentState(state)

	var err error
	if s, ok := convert.ToString(p[propIntentSource]); ok && s != "" {
		if in.source, err = uuid.Parse(s); err != nil {
			return nil, fmt.Errorf("clone intent %s: bad source UUID %q: %w", n.ID, s, err)
		}
	}
	sourceNode, _ := convert.ToString(p[propIntentSourceNode])
	in.sourceNode = storage.NodeID(sourceNode)
	targetNode, _ := convert.ToString(p[propIntentTargetNode])
	in.targetNode = storage.NodeID(targetNode)

	if s, ok := convert.ToString(p[propIntentTransitional]); ok && s != "" {
		if in.transitional, err = uuid.Parse(s); err != nil {
			return nil, fmt.Errorf("clone intent %s: bad transitional UUID %q: %w", n.ID, s, err)
		}
	}
	if s, ok := convert.ToString(p[propIntentCreated]); ok {
		in.created, _ = time.Parse(time.RFC3339Nano, s)
	}
	return in, nil
}
