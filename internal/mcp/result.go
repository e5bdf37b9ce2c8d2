package mcp

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// ParseToolResult unwraps a tool response into plain data.
//
// A {content: [{text}]} envelope yields its first text entry; a string is
// JSON-decoded when possible and returned verbatim otherwise; anything else
// is returned unchanged.
func ParseToolResult(result interface{}) interface{} {
	switch v := result.(type) {
	case string:
		return parseTextOrRaw(v)
	case *mcp.CallToolResult:
		return ParseToolResult(resultEnvelope(v))
	case map[string]interface{}:
		if text, ok := firstText(v["content"]); ok {
			return parseTextOrRaw(text)
		}
		return v
	default:
		return result
	}
}

func firstText(content interface{}) (string, bool) {
	var first interface{}
	switch items := content.(type) {
	case []interface{}:
		if len(items) == 0 {
			return "", false
		}
		first = items[0]
	case []map[string]interface{}:
		if len(items) == 0 {
			return "", false
		}
		first = items[0]
	default:
		return "", false
	}

	entry, ok := first.(map[string]interface{})
	if !ok {
		return "", false
	}
	text, ok := entry["text"].(string)
	return text, ok
}

func parseTextOrRaw(text string) interface{} {
	var parsed interface{}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return text
	}
	return parsed
}

// IsToolError reports whether a normalized envelope carries the isError flag.
func IsToolError(result interface{}) bool {
	envelope, ok := result.(map[string]interface{})
	if !ok {
		return false
	}
	flag, _ := envelope["isError"].(bool)
	return flag
}
