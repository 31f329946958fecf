package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lvillar/pdfstamp/output"
	"github.com/lvillar/pdfstamp/placement"
	"github.com/lvillar/pdfstamp/render"
)

// Engine is the render engine the tools drive. *render.Engine implements it.
type Engine interface {
	Render(ctx context.Context, fields map[string]string) (output.Result, error)
	Info() render.Info
	Table() *placement.Table
}

// RegisterTools adds the fill_form, list_fields and template_info tools.
func RegisterTools(s *Server, eng Engine) {
	s.AddTool(fillFormTool(eng))
	s.AddTool(listFieldsTool(eng))
	s.AddTool(templateInfoTool(eng))
}

func fillFormTool(eng Engine) Tool {
	return Tool{
		Name:        "fill_form",
		Description: "Fill the configured PDF template with field values. Image fields take a data URL or an http(s) URL. Returns the PDF as base64, or writes it to outputPath.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"fields": map[string]any{
					"type":        "object",
					"description": "Field values keyed by field name, for example {\"firstName\": \"Jane\", \"lastName\": \"Doe\"}. Use list_fields to see the names.",
				},
				"outputPath": map[string]any{
					"type":        "string",
					"description": "Optional file or directory path to save the PDF. If omitted, returns base64.",
				},
			},
			"required": []string{"fields"},
		},
		Handler: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			raw, ok := args["fields"].(map[string]any)
			if !ok {
				return ToolResult{}, errors.New("missing 'fields' object")
			}
			fields, err := stringFields(raw)
			if err != nil {
				return ToolResult{}, err
			}

			res, err := eng.Render(ctx, fields)
			if err != nil {
				return ToolResult{}, fmt.Errorf("rendering PDF: %w", err)
			}

			if outputPath, ok := args["outputPath"].(string); ok && outputPath != "" {
				if st, err := os.Stat(outputPath); err == nil && st.IsDir() {
					outputPath = filepath.Join(outputPath, res.Filename)
				}
				if err := os.WriteFile(outputPath, res.Bytes, 0o644); err != nil {
					return ToolResult{}, fmt.Errorf("writing file: %w", err)
				}
				return textResult("PDF filled successfully: %s (%d bytes)", outputPath, res.Size), nil
			}

			encoded := base64.StdEncoding.EncodeToString(res.Bytes)
			return textResult("PDF filled successfully: %s (%d bytes). Base64 data:\n%s", res.Filename, res.Size, encoded), nil
		},
	}
}

// stringFields flattens tool arguments to field values: numbers and booleans
// are formatted, arrays are joined with "," and nulls are dropped.
func stringFields(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			list = []any{v}
		}
		parts := make([]string, 0, len(list))
		for _, e := range list {
			if e == nil {
				continue
			}
			p, err := scalar(e)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			parts = append(parts, p)
		}
		out[k] = strings.Join(parts, ",")
	}
	return out, nil
}

func scalar(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	return "", fmt.Errorf("unsupported value of type %T", v)
}

func listFieldsTool(eng Engine) Tool {
	return Tool{
		Name:        "list_fields",
		Description: "List the fields of the placement table with the page, position and kind (text, image or barcode) of each directive.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(context.Context, map[string]any) (ToolResult, error) {
			type directive struct {
				Page      int     `json:"page"`
				X         float64 `json:"x"`
				Y         float64 `json:"y"`
				Kind      string  `json:"kind"`
				Src       string  `json:"src,omitempty"`
				Symbology string  `json:"symbology,omitempty"`
			}
			type field struct {
				Name       string      `json:"name"`
				Directives []directive `json:"directives"`
			}

			table := eng.Table()
			var fields []field
			for _, name := range table.Fields() {
				f := field{Name: name}
				for _, d := range table.DirectivesFor(name) {
					out := directive{Page: d.Page, X: d.X, Y: d.Y}
					switch p := d.Paint.(type) {
					case placement.Text:
						out.Kind = "text"
					case placement.Image:
						out.Kind, out.Src = "image", p.Src
					case placement.Barcode:
						out.Kind, out.Symbology = "barcode", string(p.Symbology)
					}
					f.Directives = append(f.Directives, out)
				}
				fields = append(fields, f)
			}

			data, err := json.MarshalIndent(fields, "", "  ")
			if err != nil {
				return ToolResult{}, err
			}
			return textResult("%s", data), nil
		},
	}
}

func templateInfoTool(eng Engine) Tool {
	return Tool{
		Name:        "template_info",
		Description: "Describe the loaded template: page sizes in points, placement table version, field names and custom fonts.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(context.Context, map[string]any) (ToolResult, error) {
			data, err := json.MarshalIndent(eng.Info(), "", "  ")
			if err != nil {
				return ToolResult{}, err
			}
			return textResult("%s", data), nil
		},
	}
}
