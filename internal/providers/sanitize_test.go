package providers

import "testing"

func toolWithParams(params map[string]interface{}) []ToolDefinition {
	return []ToolDefinition{{
		Type: "function",
		Function: ToolFunctionSchema{
			Name:        "edit_file",
			Description: "edit a file",
			Parameters:  params,
		},
	}}
}

func TestSanitizeToolSchemas_DashScope(t *testing.T) {
	tools := toolWithParams(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":    "string",
				"default": ".",
			},
		},
		"$defs":    map[string]interface{}{"Edit": "x"},
		"examples": []interface{}{"a"},
	})

	cleaned := SanitizeToolSchemas("dashscope", tools)
	if len(cleaned) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(cleaned))
	}

	params := cleaned[0].Function.Parameters
	for _, key := range []string{"$defs", "examples"} {
		if _, ok := params[key]; ok {
			t.Errorf("expected key %q to be removed", key)
		}
	}
	if _, ok := params["type"]; !ok {
		t.Error("expected 'type' to remain")
	}

	props := params["properties"].(map[string]interface{})
	pathSchema := props["path"].(map[string]interface{})
	if _, ok := pathSchema["default"]; ok {
		t.Error("expected nested 'default' to be removed")
	}
}

func TestSanitizeToolSchemas_OpenAIPassthrough(t *testing.T) {
	tools := toolWithParams(map[string]interface{}{
		"type":  "object",
		"$defs": map[string]interface{}{"Edit": "x"},
	})

	cleaned := SanitizeToolSchemas("openai", tools)
	if _, ok := cleaned[0].Function.Parameters["$defs"]; !ok {
		t.Error("openai schemas should pass through unchanged")
	}
}

func TestSanitizeToolSchemas_OriginalUntouched(t *testing.T) {
	params := map[string]interface{}{
		"type":  "object",
		"$defs": map[string]interface{}{"Edit": "x"},
	}
	tools := toolWithParams(params)

	SanitizeToolSchemas("dashscope", tools)
	if _, ok := params["$defs"]; !ok {
		t.Error("sanitizing must not mutate the caller's schema")
	}
}
