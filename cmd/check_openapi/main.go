package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// The gateway relays rag response bodies verbatim, so every schema the
// relay passes through must have the same shape in both documents.
var passthroughSchemas = []string{
	"ErrorResponse",
	"CreatedProject",
	"ProjectInfo",
	"ChatAnswer",
}

type openAPIDoc struct {
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

type schemaShape struct {
	Type       string
	Required   []string
	Properties map[string]propertyShape
}

type propertyShape struct {
	Type     string
	ItemsRef string
}

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <gateway-openapi.yaml> <rag-openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}

	gatewayDoc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	ragDoc, err := loadDoc(os.Args[2])
	if err != nil {
		exitErr(err)
	}

	for _, name := range passthroughSchemas {
		gatewaySchema, err := getSchema(gatewayDoc, name)
		if err != nil {
			exitErr(fmt.Errorf("gateway: %w", err))
		}
		ragSchema, err := getSchema(ragDoc, name)
		if err != nil {
			exitErr(fmt.Errorf("rag: %w", err))
		}
		if err := ensureSameShape(name, shapeFromSchema(gatewaySchema), shapeFromSchema(ragSchema)); err != nil {
			exitErr(err)
		}
	}

	gatewayErr, _ := getSchema(gatewayDoc, "ErrorResponse")
	if err := validateErrorResponse("gateway", gatewayErr); err != nil {
		exitErr(err)
	}
	ragErr, _ := getSchema(ragDoc, "ErrorResponse")
	if err := validateErrorResponse("rag", ragErr); err != nil {
		exitErr(err)
	}

	fmt.Println("OpenAPI consistency check passed.")
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

// validateErrorResponse pins the one error body shape every endpoint
// uses: an object with a single required string field "error".
func validateErrorResponse(scope string, s schema) error {
	if s.Type != "object" {
		return fmt.Errorf("%s ErrorResponse must be object", scope)
	}
	if !makeSet(s.Required)["error"] {
		return fmt.Errorf("%s ErrorResponse.required must include \"error\"", scope)
	}
	errorProp, ok := s.Properties["error"]
	if !ok || errorProp.Type != "string" {
		return fmt.Errorf("%s ErrorResponse.error must be string", scope)
	}
	return nil
}

func shapeFromSchema(s schema) schemaShape {
	out := schemaShape{
		Type:       s.Type,
		Required:   append([]string(nil), s.Required...),
		Properties: make(map[string]propertyShape, len(s.Properties)),
	}
	sort.Strings(out.Required)
	for name, prop := range s.Properties {
		shape := propertyShape{Type: prop.Type}
		if prop.Items != nil {
			shape.ItemsRef = strings.TrimSpace(prop.Items.Ref)
			if shape.ItemsRef == "" {
				shape.ItemsRef = prop.Items.Type
			}
		}
		out.Properties[name] = shape
	}
	return out
}

func ensureSameShape(name string, gateway, rag schemaShape) error {
	if gateway.Type != rag.Type {
		return fmt.Errorf("%s type mismatch: %q vs %q", name, gateway.Type, rag.Type)
	}
	if strings.Join(gateway.Required, ",") != strings.Join(rag.Required, ",") {
		return fmt.Errorf("%s required mismatch: %v vs %v", name, gateway.Required, rag.Required)
	}
	if len(gateway.Properties) != len(rag.Properties) {
		return fmt.Errorf("%s property count mismatch: %d vs %d", name, len(gateway.Properties), len(rag.Properties))
	}
	for key, gatewayProp := range gateway.Properties {
		ragProp, ok := rag.Properties[key]
		if !ok {
			return fmt.Errorf("%s missing property %q in rag schema", name, key)
		}
		if gatewayProp != ragProp {
			return fmt.Errorf("%s property %q mismatch: %+v vs %+v", name, key, gatewayProp, ragProp)
		}
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
