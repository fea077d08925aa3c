package serializer

import (
	jsoniter "github.com/json-iterator/go"
)

// JSON is the serializer used for frame payloads, stored records and API bodies.
//
// It keeps the "json" struct tag so records can be shared with external tools as-is.
// HTML escaping is disabled because command output is stored verbatim.
var JSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()
