package tool

import "testing"

func TestSchemaForType(t *testing.T) {
	type args struct {
		Text   string `json:"text" description:"search text"`
		Offset int    `json:"offset,omitempty" jsonschema:"minimum=1,maximum=25,default=5"`
	}
	schema := schemaForType[args]()
	if schema["type"] != "object" {
		t.Fatalf("unexpected schema type: %v", schema["type"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("missing properties")
	}
	text, ok := props["text"].(map[string]any)
	if !ok {
		t.Fatalf("missing property text")
	}
	if text["description"] != "search text" {
		t.Fatalf("unexpected description: %v", text["description"])
	}
	offset := props["offset"].(map[string]any)
	if offset["minimum"] != 1 || offset["maximum"] != 25 || offset["default"] != 5 {
		t.Fatalf("unexpected constraints: %v", offset)
	}
	required, _ := schema["required"].([]string)
	if len(required) != 1 || required[0] != "text" {
		t.Fatalf("unexpected required: %v", required)
	}
}
