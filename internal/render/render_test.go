// internal/render/render_test.go
package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	bindings := map[string]interface{}{
		"actor": map[string]interface{}{
			"firstName": "Rahul",
			"lastName":  "Verma",
		},
		"user": map[string]interface{}{
			"firstName": "Priya",
		},
		"count": float64(3),
		"name":  "Priya",
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "double delimiter nested path",
			template: "{{actor.firstName}} liked your profile",
			want:     "Rahul liked your profile",
		},
		{
			name:     "single delimiter nested path",
			template: "{actor.firstName} liked your profile",
			want:     "Rahul liked your profile",
		},
		{
			name:     "both syntaxes in one template",
			template: "Hi {user.firstName}, {{actor.firstName}} {{actor.lastName}} viewed you",
			want:     "Hi Priya, Rahul Verma viewed you",
		},
		{
			name:     "top level scalar",
			template: "Hello {{name}}, you have {count} new matches",
			want:     "Hello Priya, you have 3 new matches",
		},
		{
			name:     "missing nested value renders empty not undefined",
			template: "Hi {{user.lastName}}!",
			want:     "Hi !",
		},
		{
			name:     "unknown top level key is left verbatim",
			template: "Code: {{verification.code}}",
			want:     "Code: {{verification.code}}",
		},
		{
			name:     "unknown single delimiter placeholder is left verbatim",
			template: "Code: {verification.code}",
			want:     "Code: {verification.code}",
		},
		{
			name:     "no placeholders",
			template: "plain text",
			want:     "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.template, bindings))
		})
	}
}

func TestRenderNilValues(t *testing.T) {
	bindings := map[string]interface{}{
		"user": map[string]interface{}{"firstName": nil},
	}
	assert.Equal(t, "Hi ", Render("Hi {{user.firstName}}", bindings))
	assert.Equal(t, "Hi ", Render("Hi {user.firstName}", bindings))
}

func TestRenderDistinctRecipients(t *testing.T) {
	// Two records for the same trigger must each see their own recipient
	// bindings, not the actor's identifier.
	template := "Hi {{user.firstName}}, {{actor.firstName}} favorited you"

	first := Render(template, map[string]interface{}{
		"actor": map[string]interface{}{"firstName": "Jane"},
		"user":  map[string]interface{}{"firstName": "Admin"},
	})
	second := Render(template, map[string]interface{}{
		"actor": map[string]interface{}{"firstName": "Jane"},
		"user":  map[string]interface{}{"firstName": "Priya"},
	})

	assert.Equal(t, "Hi Admin, Jane favorited you", first)
	assert.Equal(t, "Hi Priya, Jane favorited you", second)
	assert.NotEqual(t, first, second)
}

func TestRenderUnresolvedNeverCorrupted(t *testing.T) {
	// An unresolved double-brace placeholder keeps both braces; the single
	// brace syntax must not partially match inside it.
	out := Render("{{missing.path}}", map[string]interface{}{"other": "x"})
	assert.Equal(t, "{{missing.path}}", out)
}

func TestRenderEmptyInputs(t *testing.T) {
	assert.Equal(t, "", Render("", map[string]interface{}{"a": "b"}))
	assert.Equal(t, "{{a.b}}", Render("{{a.b}}", nil))
}

func TestRenderPartialPathThroughScalar(t *testing.T) {
	bindings := map[string]interface{}{"user": "priya_s"}
	assert.Equal(t, "Hi ", Render("Hi {{user.firstName}}", bindings))
}

func TestRenderPathStoppingAtMap(t *testing.T) {
	// A known key whose value is still a map renders as empty, like any
	// other missing nested value, never as Go's map syntax.
	bindings := map[string]interface{}{
		"user": map[string]interface{}{"firstName": "Priya"},
	}
	assert.Equal(t, "Hi ", Render("Hi {{user}}", bindings))
	assert.Equal(t, "Hi ", Render("Hi {user}", bindings))
}
