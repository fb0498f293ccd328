package docs

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSwaggerInfoRegistered(t *testing.T) {
	if SwaggerInfo == nil {
		t.Fatal("swagger info not initialized")
	}
	if SwaggerInfo.Title != "Probable Pancake API" {
		t.Fatalf("unexpected title %q", SwaggerInfo.Title)
	}
	if SwaggerInfo.BasePath != "/" {
		t.Fatalf("unexpected base path %q", SwaggerInfo.BasePath)
	}
}

func TestSpecCoversDecisionRoutes(t *testing.T) {
	spec := SwaggerInfo.ReadDoc()
	var doc struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal([]byte(spec), &doc); err != nil {
		t.Fatalf("generated spec is not valid JSON: %v", err)
	}
	for _, route := range []string{
		"/api/decisions/latest",
		"/api/backtests/{id}/equity",
		"/api/ml/train",
		"/health",
	} {
		if _, ok := doc.Paths[route]; !ok {
			t.Fatalf("spec missing route %s", route)
		}
	}
	if !strings.Contains(spec, "USD/JPY") {
		t.Fatal("spec description should name the traded pair")
	}
}
