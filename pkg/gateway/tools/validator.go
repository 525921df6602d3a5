package tools

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/realtyvoice/voice-gateway/pkg/realtime"
)

// argumentValidator checks call arguments against a tool's parameter schema.
// Compiled schemas are cached per tool since declarations never change after
// startup.
type argumentValidator struct {
	mu    sync.Mutex
	cache map[string]*gojsonschema.Schema
}

func newArgumentValidator() *argumentValidator {
	return &argumentValidator{cache: make(map[string]*gojsonschema.Schema)}
}

func (v *argumentValidator) Validate(def realtime.ToolDef, rawArgs string) error {
	if len(def.Parameters) == 0 {
		return nil
	}
	schema, err := v.schemaFor(def)
	if err != nil {
		return fmt.Errorf("invalid parameter schema for %s: %w", def.Name, err)
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(rawArgs))
	if err != nil {
		return fmt.Errorf("validate arguments: %w", err)
	}
	if !result.Valid() {
		descs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descs = append(descs, desc.String())
		}
		return fmt.Errorf("%s", strings.Join(descs, "; "))
	}
	return nil
}

func (v *argumentValidator) schemaFor(def realtime.ToolDef) (*gojsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if schema, ok := v.cache[def.Name]; ok {
		return schema, nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.Parameters))
	if err != nil {
		return nil, err
	}
	v.cache[def.Name] = schema
	return schema, nil
}
