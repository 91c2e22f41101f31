package transport

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Normalize maps a remote result onto the plain shapes both transports
// share:
//
//   - *mcp.CallToolResult becomes a map with content, structuredContent
//     and isError keys, as it appears on the wire.
//   - map[string]any is returned as is.
//   - strings, booleans, numbers and nil are returned as is.
//
// Any other shape yields ErrUnsupportedResult.
func Normalize(v any) (any, error) {
	switch r := v.(type) {
	case nil:
		return nil, nil
	case *mcp.CallToolResult:
		if r == nil {
			return nil, nil
		}
		return flattenToolResult(r)
	case map[string]any:
		return r, nil
	case string, bool, json.Number,
		float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedResult, v)
	}
}

func flattenToolResult(r *mcp.CallToolResult) (map[string]any, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: encode tool result: %v", ErrUnsupportedResult, err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode tool result: %v", ErrUnsupportedResult, err)
	}
	if _, ok := out["content"]; !ok {
		out["content"] = []any{}
	}
	return out, nil
}
