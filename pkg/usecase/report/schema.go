package report

import (
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

func stringArraySchema(description string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "array",
		Description: description,
		Items:       &jsonschema.Schema{Type: "string"},
	}
}

// GroupSummarySchema is the JSON schema a group summary response must satisfy
func GroupSummarySchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "object",
		Description: "Summary of one topic group of the daily report",
		Properties: map[string]*jsonschema.Schema{
			"title": {Type: "string", Description: "Short title of the group"},
			"topic": {Type: "string", Description: "Topic name of the group"},
			"content": {
				Type:        "array",
				Description: "One entry per story",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"text":    {Type: "string", Description: "Paragraph describing the story"},
						"sources": stringArraySchema("Links of the items the paragraph is based on"),
						"images":  stringArraySchema("Image URLs shown with the paragraph"),
						"videos":  stringArraySchema("Video URLs shown with the paragraph"),
					},
					Required: []string{"text"},
				},
			},
		},
		Required: []string{"title", "content"},
	}
}

var resolvedGroupSummarySchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	return GroupSummarySchema().Resolve(nil)
})
