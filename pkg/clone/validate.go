package clone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ndexbio/ndexgraph/pkg/model"
)

// validate rejects snapshots that must not start a clone. It runs before the
// first write.
func validate(src *model.Network) error {
	if src == nil {
		return &ValidationError{Field: "network", Msg: "snapshot is nil"}
	}
	if strings.TrimSpace(src.Name) == "" {
		return &ValidationError{Field: "name", Msg: "network name is required"}
	}
	if err := src.Validate(); err != nil {
		var fe *model.FieldError
		if errors.As(err, &fe) {
			return &ValidationError{Field: fe.Field, Msg: fmt.Sprintf("failed %q", fe.Tag)}
		}
		return &ValidationError{Field: "network", Msg: err.Error()}
	}

	prefixes := make(map[string]int64, len(src.Namespaces))
	for _, id := range model.SortedIDs(src.Namespaces) {
		ns := src.Namespaces[id]
		if ns.Prefix == "" {
			continue
		}
		if other, dup := prefixes[ns.Prefix]; dup {
			return &ValidationError{
				Field: "namespaces",
				Msg:   fmt.Sprintf("duplicate prefix %q (namespaces %d and %d)", ns.Prefix, other, id),
			}
		}
		prefixes[ns.Prefix] = id
	}

	for _, id := range model.SortedIDs(src.Nodes) {
		if ref := src.Nodes[id].Represents; ref != nil && !ref.Kind.Valid() {
			return &ValidationError{
				Field: fmt.Sprintf("nodes[%d].represents", id),
				Msg:   fmt.Sprintf("unknown term kind %q", ref.Kind),
			}
		}
	}
	return nil
}
