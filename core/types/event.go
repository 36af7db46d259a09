package types

// Event is the wire representation of a structured state change emitted by
// the settlement service. Attribute values carry the literal values involved
// so observers can reconstruct entity state from a replay.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
