// pkg/registry/schema.go
package registry

// IntentRegistry is the on-disk catalog of supported intents.
type IntentRegistry struct {
	Version     string   `json:"version"`
	LastUpdated string   `json:"lastUpdated"`
	WAPIVersion string   `json:"wapiVersion,omitempty"`
	Intents     []Intent `json:"intents"`
}

// Intent describes how one intent executes against the grid.
type Intent struct {
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	Method           string   `json:"method"`
	Endpoint         string   `json:"endpoint"`
	Fields           []string `json:"fields,omitempty"`
	RequiredFields   []string `json:"required_fields,omitempty"`
	SearchableFields []string `json:"searchable_fields,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

// documentSchema is the JSON Schema every registry file must satisfy.
var documentSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"version", "intents"},
	"properties": map[string]interface{}{
		"version":     map[string]interface{}{"type": "string"},
		"lastUpdated": map[string]interface{}{"type": "string"},
		"wapiVersion": map[string]interface{}{"type": "string"},
		"intents": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"name", "method", "endpoint"},
				"properties": map[string]interface{}{
					"name":              map[string]interface{}{"type": "string", "pattern": "^[a-z]+_[a-z0-9_]+$"},
					"method":            map[string]interface{}{"type": "string", "enum": []interface{}{"GET", "POST", "PUT", "DELETE"}},
					"endpoint":          map[string]interface{}{"type": "string", "minLength": 1},
					"fields":            stringArray,
					"required_fields":   stringArray,
					"searchable_fields": stringArray,
					"tags":              stringArray,
				},
			},
		},
	},
}

var stringArray = map[string]interface{}{
	"type":  "array",
	"items": map[string]interface{}{"type": "string"},
}
