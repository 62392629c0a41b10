// Package storage - Serialization helpers for BadgerDB.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// serializableNode is the JSON-serializable form of a Node.
type serializableNode struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
	CreatedAt  int64          `json:"createdAt"`
	UpdatedAt  int64          `json:"updatedAt"`
}

// serializableEdge is the JSON-serializable form of an Edge.
type serializableEdge struct {
	ID         string         `json:"id"`
	StartNode  string         `json:"startNode"`
	EndNode    string         `json:"endNode"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  int64          `json:"createdAt"`
}

// encodeNode serializes a Node to JSON.
func encodeNode(n *Node) ([]byte, error) {
	sn := serializableNode{
		ID:         string(n.ID),
		Labels:     n.Labels,
		Properties: n.Properties,
		CreatedAt:  timeToUnixNano(n.CreatedAt),
		UpdatedAt:  timeToUnixNano(n.UpdatedAt),
	}
	return json.Marshal(sn)
}

// decodeNode deserializes a Node from JSON.
//
// Numbers are decoded as json.Number so that 64-bit identifiers survive the
// round trip without float rounding.
func decodeNode(data []byte) (*Node, error) {
	var sn serializableNode
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&sn); err != nil {
		return nil, fmt.Errorf("unmarshaling node: %w", err)
	}

	return &Node{
		ID:         NodeID(sn.ID),
		Labels:     sn.Labels,
		Properties: sn.Properties,
		CreatedAt:  unixNanoToTime(sn.CreatedAt),
		UpdatedAt:  unixNanoToTime(sn.UpdatedAt),
	}, nil
}

// encodeEdge serializes an Edge to JSON.
func encodeEdge(e *Edge) ([]byte, error) {
	se := serializableEdge{
		ID:         string(e.ID),
		StartNode:  string(e.StartNode),
		EndNode:    string(e.EndNode),
		Type:       e.Type,
		Properties: e.Properties,
		CreatedAt:  timeToUnixNano(e.CreatedAt),
	}
	return json.Marshal(se)
}

// decodeEdge deserializes an Edge from JSON.
func decodeEdge(data []byte) (*Edge, error) {
	var se serializableEdge
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&se); err != nil {
		return nil, fmt.Errorf("unmarshaling edge: %w", err)
	}

	return &Edge{
		ID:         EdgeID(se.ID),
		StartNode:  NodeID(se.StartNode),
		EndNode:    NodeID(se.EndNode),
		Type:       se.Type,
		Properties: se.Properties,
		CreatedAt:  unixNanoToTime(se.CreatedAt),
	}, nil
}

func timeToUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// unixNanoToTime converts a stored timestamp to time.Time.
func unixNanoToTime(ns int64) time.Time {
	if ns <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
