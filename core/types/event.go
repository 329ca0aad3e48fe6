package types

// Event represents a typed event emitted by an engine during a state change.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
