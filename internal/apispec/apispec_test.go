package apispec

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T) *Spec {
	t.Helper()
	spec, err := Load()
	require.NoError(t, err)
	return spec
}

func TestLoad(t *testing.T) {
	spec := mustLoad(t)

	var ids []string
	for _, op := range spec.Operations() {
		ids = append(ids, op.Method+" "+op.ID)
	}
	want := []string{
		"POST create_link_token",
		"POST create_update_token",
		"POST exchange_public_token",
		"GET list_items",
		"DELETE remove_item",
		"POST webhook",
	}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}

	op, ok := spec.Operation("remove_item")
	require.True(t, ok)
	assert.Equal(t, "/items/{id}", op.Path)

	_, ok = spec.Operation("nope")
	assert.False(t, ok)
}

func TestParseRejectsInvalidDocument(t *testing.T) {
	_, err := Parse([]byte("not: [valid"))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"openapi":"3.0.3","info":{"title":"x"},"paths":{}}`))
	assert.Error(t, err, "info.version is required")
}

func TestTools(t *testing.T) {
	spec := mustLoad(t)
	tools := spec.Tools(NewAdjuster())

	byName := make(map[string]mcp.Tool)
	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
		byName[tool.Name] = tool
	}
	want := []string{"create_link_token", "create_update_token", "exchange_public_token", "list_items", "remove_item"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("tools mismatch (-want +got):\n%s", diff)
	}

	t.Run("body properties become arguments", func(t *testing.T) {
		tool := byName["exchange_public_token"]
		assert.Contains(t, tool.InputSchema.Required, "public_token")
		assert.NotContains(t, tool.InputSchema.Required, "institution")

		institution, ok := tool.InputSchema.Properties["institution"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "object", institution["type"])
		props, ok := institution["properties"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, props, "institution_id")
	})

	t.Run("path parameters are required strings", func(t *testing.T) {
		tool := byName["remove_item"]
		assert.Contains(t, tool.InputSchema.Required, "id")
		id, ok := tool.InputSchema.Properties["id"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "string", id["type"])
	})

	t.Run("optional arguments", func(t *testing.T) {
		tool := byName["create_link_token"]
		assert.Empty(t, tool.InputSchema.Required)
		assert.Contains(t, tool.InputSchema.Properties, "item_id")
		assert.Contains(t, tool.Description, "update-mode")
	})

	t.Run("no arguments", func(t *testing.T) {
		assert.Empty(t, byName["list_items"].InputSchema.Properties)
	})
}

func TestToolsWithAdjustments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adjustments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tools:
  - list_items
  - remove_item
descriptions:
  - tool: list_items
    description: Show what is linked
`), 0o600))

	adj := NewAdjuster()
	require.NoError(t, adj.Load(path))

	tools := mustLoad(t).Tools(adj)
	require.Len(t, tools, 2)
	assert.Equal(t, "list_items", tools[0].Name)
	assert.Equal(t, "Show what is linked", tools[0].Description)
	assert.Equal(t, "remove_item", tools[1].Name)
	assert.Equal(t, "Invalidate the item's access token at Plaid and forget the item.", tools[1].Description)
}

func TestAdjuster(t *testing.T) {
	t.Run("empty path and missing file keep defaults", func(t *testing.T) {
		adj := NewAdjuster()
		require.NoError(t, adj.Load(""))
		require.NoError(t, adj.Load(filepath.Join(t.TempDir(), "missing.yaml")))
		assert.True(t, adj.Enabled("anything"))
		assert.Equal(t, "orig", adj.Description("anything", "orig"))
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tools: {"), 0o600))
		assert.Error(t, NewAdjuster().Load(path))
	})

	t.Run("nil adjuster", func(t *testing.T) {
		var adj *Adjuster
		assert.True(t, adj.Enabled("x"))
		assert.Equal(t, "orig", adj.Description("x", "orig"))
	})
}

func TestValidator(t *testing.T) {
	spec := mustLoad(t)

	var gotBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusTeapot)
	})
	handler := spec.Validator(next)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"valid exchange", http.MethodPost, "/exchange_public_token", `{"public_token":"public-sandbox-1"}`, http.StatusTeapot},
		{"missing public token", http.MethodPost, "/exchange_public_token", `{}`, http.StatusBadRequest},
		{"empty public token", http.MethodPost, "/exchange_public_token", `{"public_token":""}`, http.StatusBadRequest},
		{"link token without body", http.MethodPost, "/create_link_token", "", http.StatusTeapot},
		{"link token with item", http.MethodPost, "/create_link_token", `{"item_id":"item-1"}`, http.StatusTeapot},
		{"link token with unknown field", http.MethodPost, "/create_link_token", `{"user":"x"}`, http.StatusBadRequest},
		{"update token without item", http.MethodPost, "/create_update_token", `{}`, http.StatusBadRequest},
		{"remove item", http.MethodDelete, "/items/item-1", "", http.StatusTeapot},
		{"webhook", http.MethodPost, "/webhook", `{"webhook_type":"ITEM","webhook_code":"LOGIN_REPAIRED","item_id":"i"}`, http.StatusTeapot},
		{"undocumented route", http.MethodGet, "/healthz", "", http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotBody = ""
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusTeapot {
				assert.Equal(t, tt.body, gotBody, "body must still be readable downstream")
			} else {
				assert.Contains(t, rec.Body.String(), `"error":"invalid_request"`)
			}
		})
	}
}

func TestSchemaToMCPOptions(t *testing.T) {
	tests := []struct {
		name   string
		schema *openapi3.SchemaRef
		check  func(t *testing.T, prop map[string]any)
	}{
		{
			name:   "nil schema is an object",
			schema: nil,
			check: func(t *testing.T, prop map[string]any) {
				assert.Equal(t, "object", prop["type"])
			},
		},
		{
			name: "string enum",
			schema: &openapi3.SchemaRef{Value: &openapi3.Schema{
				Type: &openapi3.Types{"string"},
				Enum: []any{"create", "update"},
			}},
			check: func(t *testing.T, prop map[string]any) {
				assert.Equal(t, "string", prop["type"])
				assert.Equal(t, []string{"create", "update"}, prop["enum"])
			},
		},
		{
			name: "integer bounds",
			schema: &openapi3.SchemaRef{Value: &openapi3.Schema{
				Type: &openapi3.Types{"integer"},
				Min:  openapi3.Float64Ptr(1),
				Max:  openapi3.Float64Ptr(730),
			}},
			check: func(t *testing.T, prop map[string]any) {
				assert.Equal(t, "number", prop["type"])
				assert.Equal(t, float64(1), prop["minimum"])
				assert.Equal(t, float64(730), prop["maximum"])
			},
		},
		{
			name: "array of strings",
			schema: &openapi3.SchemaRef{Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			}},
			check: func(t *testing.T, prop map[string]any) {
				assert.Equal(t, "array", prop["type"])
				assert.Equal(t, map[string]any{"type": "string"}, prop["items"])
			},
		},
		{
			name:   "boolean",
			schema: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
			check: func(t *testing.T, prop map[string]any) {
				assert.Equal(t, "boolean", prop["type"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := mcp.NewTool("test", schemaToMCPOptions(tt.schema, "arg", "an argument", true))
			assert.Contains(t, tool.InputSchema.Required, "arg")
			prop, ok := tool.InputSchema.Properties["arg"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "an argument", prop["description"])
			tt.check(t, prop)
		})
	}
}
