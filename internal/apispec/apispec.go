// Package apispec holds the OpenAPI description of the link backend. The
// document drives request validation on the HTTP server and the input
// schemas of the MCP tools.
package apispec

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

//go:embed openapi.yaml
var document []byte

// Raw returns the embedded OpenAPI document.
func Raw() []byte {
	return document
}

// Spec is a loaded and validated OpenAPI document.
type Spec struct {
	doc    *openapi3.T
	router routers.Router
}

// Operation is a single method on a path.
type Operation struct {
	ID     string
	Method string
	Path   string
	Op     *openapi3.Operation
}

// Load parses the embedded document.
func Load() (*Spec, error) {
	return Parse(document)
}

// Parse loads an OpenAPI 3 document and builds its router.
func Parse(data []byte) (*Spec, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	return &Spec{doc: doc, router: router}, nil
}

// Document returns the parsed document.
func (s *Spec) Document() *openapi3.T {
	return s.doc
}

// Operations lists every operation sorted by operation id.
func (s *Spec) Operations() []Operation {
	var ops []Operation
	for path, item := range s.doc.Paths.Map() {
		for method, op := range item.Operations() {
			ops = append(ops, Operation{ID: op.OperationID, Method: method, Path: path, Op: op})
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID < ops[j].ID })
	return ops
}

// Operation finds an operation by its id.
func (s *Spec) Operation(id string) (Operation, bool) {
	for _, op := range s.Operations() {
		if op.ID == id {
			return op, true
		}
	}
	return Operation{}, false
}

// FindRoute matches a request against the document.
func (s *Spec) FindRoute(r *http.Request) (*routers.Route, map[string]string, error) {
	return s.router.FindRoute(r)
}
