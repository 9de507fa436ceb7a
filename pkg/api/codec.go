// Package api defines the Connect RPC surface of the study group server:
// procedure names, request and response messages, the JSON codec they
// travel in, and a typed client.
package api

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// Codec carries messages as plain JSON. It replaces Connect's default
// "json" codec, which requires generated protobuf types.
type Codec struct{}

// Ensure Codec implements connect.Codec
var _ connect.Codec = Codec{}

// Name implements connect.Codec.
func (Codec) Name() string { return "json" }

// Marshal implements connect.Codec.
func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements connect.Codec.
func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
