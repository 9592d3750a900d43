package providers

// JSON Schema keys some providers reject in tool parameters.
// DashScope's compatible mode rejects $ref/$defs; strict OpenAI-compatible
// gateways also choke on examples/default inside nested schemas.
var unsupportedSchemaKeys = map[string][]string{
	"dashscope": {"$ref", "$defs", "examples", "default"},
}

// SanitizeToolSchemas returns a copy of tools with provider-incompatible
// JSON Schema fields removed from each tool's parameters. Providers with no
// known quirks get the original slice back unchanged.
func SanitizeToolSchemas(providerName string, tools []ToolDefinition) []ToolDefinition {
	drop := unsupportedSchemaKeys[providerName]
	if len(drop) == 0 || len(tools) == 0 {
		return tools
	}

	out := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		out[i] = ToolDefinition{
			Type: t.Type,
			Function: ToolFunctionSchema{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  stripSchemaKeys(t.Function.Parameters, drop),
			},
		}
	}
	return out
}

// stripSchemaKeys recursively removes the given keys from a JSON Schema map.
func stripSchemaKeys(schema map[string]interface{}, drop []string) map[string]interface{} {
	if schema == nil {
		return nil
	}
	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		if containsKey(drop, k) {
			continue
		}
		switch val := v.(type) {
		case map[string]interface{}:
			out[k] = stripSchemaKeys(val, drop)
		case []interface{}:
			items := make([]interface{}, len(val))
			for i, item := range val {
				if m, ok := item.(map[string]interface{}); ok {
					items[i] = stripSchemaKeys(m, drop)
				} else {
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
