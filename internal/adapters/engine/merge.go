package engine

import (
	"dario.cat/mergo"

	json "github.com/eleven-am/flux/internal/xjson"
)

// mergePayloads combines multiple JSON payloads arriving on the same input
// port into one object, later payloads overriding earlier keys. Non-object
// payloads fall back to last-write-wins.
func mergePayloads(payloads []json.RawMessage) json.RawMessage {
	if len(payloads) == 0 {
		return nil
	}
	if len(payloads) == 1 {
		return payloads[0]
	}

	merged := make(map[string]interface{})
	for _, payload := range payloads {
		var decoded map[string]interface{}
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return payloads[len(payloads)-1]
		}
		if err := mergo.Merge(&merged, decoded, mergo.WithOverride); err != nil {
			return payloads[len(payloads)-1]
		}
	}

	encoded, err := json.Marshal(merged)
	if err != nil {
		return payloads[len(payloads)-1]
	}
	return encoded
}

// errorShapedPayload is what a dependent consumes in place of normal output
// when its upstream failed with continue-on-fail set. Downstream nodes can
// branch on the presence of the "error" key.
func errorShapedPayload(nodeID, message string) json.RawMessage {
	payload := map[string]interface{}{
		"error": map[string]interface{}{
			"node_id": nodeID,
			"message": message,
		},
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return json.RawMessage(`{"error":{}}`)
	}
	return encoded
}
