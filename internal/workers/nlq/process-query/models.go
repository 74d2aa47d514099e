package processquery

import "wapi-nlq/internal/common/validation"

type Input struct {
	Query string `json:"query"`
}

var inputSchema = validation.MustCompile(map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"query"},
	"properties": map[string]interface{}{
		"query": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
			"maxLength": 2000,
		},
	},
})
