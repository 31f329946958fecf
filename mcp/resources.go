package mcp

import (
	"context"

	"github.com/lvillar/pdfstamp/placement"
)

// TableURI names the placement table resource.
const TableURI = "placement://table"

// RegisterResources adds the placement table resource.
func RegisterResources(s *Server, eng Engine) {
	s.AddResource(Resource{
		URI:         TableURI,
		Name:        "Placement Table",
		Description: "The active placement table as YAML: every field with the page, position and style of its directives.",
		MIMEType:    "application/yaml",
		Handler: func(_ context.Context, uri string) ([]ResourceContent, error) {
			data, err := placement.Marshal(eng.Table())
			if err != nil {
				return nil, err
			}
			return []ResourceContent{{URI: uri, MIMEType: "application/yaml", Text: string(data)}}, nil
		},
	})
}
