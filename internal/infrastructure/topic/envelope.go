package topic

import "encoding/json"

// Protocol is the identifier stamped on every message the engine emits.
// Consumers filter topic traffic on it, so the key set below is wire format.
const Protocol = "hcs-19"

// Envelope is the fixed frame around every emitted message: protocol tag,
// operation tag, the acting controller, and an ISO-8601 timestamp, with
// operation-specific fields flattened alongside them.
type Envelope struct {
	Op         string
	OperatorID string
	Timestamp  string
	Fields     map[string]interface{}
}

// MarshalJSON flattens the envelope into a single JSON object. The reserved
// keys win over any colliding operation field.
func (e Envelope) MarshalJSON() ([]byte, error) {
	obj := make(map[string]interface{}, len(e.Fields)+4)
	for k, v := range e.Fields {
		obj[k] = v
	}
	obj["p"] = Protocol
	obj["op"] = e.Op
	obj["operator_id"] = e.OperatorID
	obj["timestamp"] = e.Timestamp
	return json.Marshal(obj)
}
