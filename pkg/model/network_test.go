package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tp53Snapshot = `{
  "name": "TP53 pathway",
  "visibility": "PUBLIC",
  "properties": [{"predicateId": 1, "predicateString": "organism", "value": "human"}],
  "namespaces": {"10": {"prefix": "hgnc", "uri": "http://identifiers.org/hgnc/"}},
  "baseTerms": {"1": {"name": "TP53", "namespaceId": 10}},
  "nodes": {"100": {"name": "n1", "represents": {"kind": "BaseTerm", "id": 1}}},
  "edges": {"200": {"subjectId": 100, "objectId": 100, "predicateId": 1}}
}`

func TestReadNetwork(t *testing.T) {
	n, err := ReadNetwork(strings.NewReader(tp53Snapshot))
	require.NoError(t, err)

	assert.Equal(t, "TP53 pathway", n.Name)
	assert.Equal(t, VisibilityPublic, n.Visibility)
	require.Len(t, n.Namespaces, 1)
	assert.Equal(t, int64(10), n.Namespaces[10].ID, "id defaults to map key")
	assert.Equal(t, "hgnc", n.Namespaces[10].Prefix)

	node := n.Nodes[100]
	require.NotNil(t, node.Represents)
	assert.Equal(t, BaseTermKind, node.Represents.Kind)
	assert.Equal(t, int64(1), node.Represents.ID)

	assert.Equal(t, int64(100), n.Edges[200].SubjectID)
	assert.NotNil(t, n.Citations, "maps are always allocated")
	assert.NoError(t, n.Validate())
}

func TestReadNetwork_Rejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"unknown term kind", `{"name":"x","nodes":{"1":{"represents":{"kind":"Gene","id":1}}}}`},
		{"id disagrees with key", `{"name":"x","baseTerms":{"1":{"id":2,"name":"a"}}}`},
		{"null entry", `{"name":"x","baseTerms":{"1":null}}`},
		{"unknown field", `{"name":"x","colour":"blue"}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadNetwork(strings.NewReader(tt.json))
			require.Error(t, err)
		})
	}
}

func TestNetwork_Validate(t *testing.T) {
	t.Run("missing name", func(t *testing.T) {
		n := NewNetwork("")
		err := n.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidSnapshot))

		var fe *FieldError
		require.True(t, errors.As(err, &fe))
		assert.Contains(t, fe.Field, "Name")
		assert.Equal(t, "required", fe.Tag)
	})

	t.Run("bad visibility", func(t *testing.T) {
		n := NewNetwork("x")
		n.Visibility = "SECRET"
		assert.Error(t, n.Validate())
	})

	t.Run("property without predicate", func(t *testing.T) {
		n := NewNetwork("x")
		n.Nodes[1] = &Node{ID: 1, Annotations: Annotations{Properties: []Property{{Value: "v"}}}}
		assert.Error(t, n.Validate())
	})
}

func TestTermRef_JSON(t *testing.T) {
	data, err := json.Marshal(FunctionTermRef(7))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"FunctionTerm","id":7}`, string(data))

	var ref TermRef
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"ReifiedEdgeTerm","id":3}`), &ref))
	assert.Equal(t, *ReifiedEdgeTermRef(3), ref)
	assert.Equal(t, "ReifiedEdgeTerm(3)", ref.String())
}

func TestVisibility_OrDefault(t *testing.T) {
	assert.Equal(t, VisibilityPrivate, Visibility("").OrDefault())
	assert.Equal(t, VisibilityDiscoverable, VisibilityDiscoverable.OrDefault())
}

func TestSortedIDs(t *testing.T) {
	m := map[int64]*Node{30: {}, 1: {}, 7: {}}
	assert.Equal(t, []int64{1, 7, 30}, SortedIDs(m))
}
