// Package payload is the convenience layer mentioned in design note §9:
// the core engine treats custom_data as opaque json.RawMessage and never
// parses it; callers who want typed access can use Encode/Decode here,
// outside the core, to move between their own structures and the
// self-describing textual form the engine persists.
package payload

import "encoding/json"

// Encode serializes v to the textual form the engine stores as
// custom_data.
func Encode[T any](v T) (json.RawMessage, error) {
	return json.Marshal(v)
}

// Decode deserializes raw custom_data into a caller-defined structure.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
