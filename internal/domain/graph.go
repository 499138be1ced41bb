package domain

import (
	json "github.com/eleven-am/flux/internal/xjson"
)

type TriggerType string

const (
	TriggerTypeWebhook  TriggerType = "webhook"
	TriggerTypeSchedule TriggerType = "schedule"
	TriggerTypeManual   TriggerType = "manual"
)

type GraphDefinition struct {
	ID          string              `json:"id" yaml:"id"`
	Name        string              `json:"name,omitempty" yaml:"name,omitempty"`
	Active      bool                `json:"active" yaml:"active"`
	Nodes       []GraphNode         `json:"nodes" yaml:"nodes"`
	Connections []Connection        `json:"connections" yaml:"connections"`
	Triggers    []TriggerDefinition `json:"triggers" yaml:"triggers"`
}

type GraphNode struct {
	ID             string          `json:"id" yaml:"id"`
	Type           string          `json:"type" yaml:"type"`
	Parameters     json.RawMessage `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	ContinueOnFail bool            `json:"continue_on_fail,omitempty" yaml:"continue_on_fail,omitempty"`
}

type Connection struct {
	SourceNodeID     string `json:"source_node_id" yaml:"source_node_id"`
	SourceOutputPort string `json:"source_output_port" yaml:"source_output_port"`
	TargetNodeID     string `json:"target_node_id" yaml:"target_node_id"`
	TargetInputPort  string `json:"target_input_port" yaml:"target_input_port"`
}

type TriggerDefinition struct {
	ID       string                 `json:"id" yaml:"id"`
	Type     TriggerType            `json:"type" yaml:"type"`
	NodeID   string                 `json:"node_id" yaml:"node_id"`
	Settings map[string]interface{} `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// DefaultOutputPort is assumed when a connection or node result does not
// name an explicit port.
const DefaultOutputPort = "main"

func (g *GraphDefinition) Node(nodeID string) (*GraphNode, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == nodeID {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

func (g *GraphDefinition) HasNode(nodeID string) bool {
	_, ok := g.Node(nodeID)
	return ok
}

// TriggerKey returns the registry key for a trigger definition. Webhook
// triggers use the key from their settings; schedule and manual triggers
// fall back to "<graph>:<trigger>" so every trigger is addressable.
func (t *TriggerDefinition) TriggerKey(graphID string) string {
	if t.Settings != nil {
		if key, ok := t.Settings["trigger_key"].(string); ok && key != "" {
			return key
		}
	}
	return graphID + ":" + t.ID
}

// Clone deep-copies a graph definition so the engine can hold an immutable
// snapshot while the live definition keeps being edited.
func (g *GraphDefinition) Clone() *GraphDefinition {
	if g == nil {
		return nil
	}

	clone := &GraphDefinition{
		ID:     g.ID,
		Name:   g.Name,
		Active: g.Active,
	}

	clone.Nodes = make([]GraphNode, len(g.Nodes))
	for i, node := range g.Nodes {
		clone.Nodes[i] = node
		if node.Parameters != nil {
			params := make(json.RawMessage, len(node.Parameters))
			copy(params, node.Parameters)
			clone.Nodes[i].Parameters = params
		}
	}

	clone.Connections = make([]Connection, len(g.Connections))
	copy(clone.Connections, g.Connections)

	clone.Triggers = make([]TriggerDefinition, len(g.Triggers))
	for i, trigger := range g.Triggers {
		clone.Triggers[i] = trigger
		if trigger.Settings != nil {
			settings := make(map[string]interface{}, len(trigger.Settings))
			for k, v := range trigger.Settings {
				settings[k] = v
			}
			clone.Triggers[i].Settings = settings
		}
	}

	return clone
}

// TriggerBinding is one entry in the trigger registry: everything needed to
// resolve an external event to a graph and its entry node.
type TriggerBinding struct {
	TriggerKey    string                 `json:"trigger_key"`
	GraphID       string                 `json:"graph_id"`
	TriggerID     string                 `json:"trigger_id"`
	TriggerNodeID string                 `json:"trigger_node_id"`
	TriggerType   TriggerType            `json:"trigger_type"`
	Settings      map[string]interface{} `json:"settings,omitempty"`
}
