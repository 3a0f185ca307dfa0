// internal/jobs/registry.go
package jobs

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	pkgerrors "matrimony-pipeline/internal/common/errors"
)

// Registry maps template type tags to templates. Schemas are compiled at
// registration so a malformed schema fails startup, not the first execution.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]JobTemplate
	schemas   map[string]*gojsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]JobTemplate),
		schemas:   make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a template. Duplicate tags and uncompilable schemas are
// startup errors.
func (r *Registry) Register(tpl JobTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tag := tpl.Type()
	if tag == "" {
		return fmt.Errorf("registry: template with empty type tag")
	}
	if _, exists := r.templates[tag]; exists {
		return fmt.Errorf("registry: duplicate template type %q", tag)
	}

	if raw := tpl.ParameterSchema(); raw != "" {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			return fmt.Errorf("registry: compile schema for %q: %w", tag, err)
		}
		r.schemas[tag] = schema
	}
	r.templates[tag] = tpl
	return nil
}

// MustRegister panics on registration failure; used for the fixed set wired
// at startup.
func (r *Registry) MustRegister(tpl JobTemplate) {
	if err := r.Register(tpl); err != nil {
		panic(err)
	}
}

// Get returns the template for a type tag.
func (r *Registry) Get(templateType string) (JobTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.templates[templateType]
	if !ok {
		return nil, pkgerrors.NewUnknownTemplateTypeError(templateType)
	}
	return tpl, nil
}

// Validate checks a definition's parameters against the template's compiled
// schema, then the template's own checks.
func (r *Registry) Validate(templateType string, params json.RawMessage) error {
	r.mu.RLock()
	tpl, ok := r.templates[templateType]
	schema := r.schemas[templateType]
	r.mu.RUnlock()

	if !ok {
		return pkgerrors.NewUnknownTemplateTypeError(templateType)
	}
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	if schema != nil {
		result, err := schema.Validate(gojsonschema.NewBytesLoader(params))
		if err != nil {
			return pkgerrors.NewInvalidJobParametersError(err.Error())
		}
		if !result.Valid() {
			var details string
			for i, desc := range result.Errors() {
				if i > 0 {
					details += "; "
				}
				details += desc.String()
			}
			return pkgerrors.NewInvalidJobParametersError(details)
		}
	}
	return tpl.ValidateParameters(params)
}

// Types returns the registered type tags, sorted, for startup logging.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.templates))
	for tag := range r.templates {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
