// Package validate checks raw stage output against the stage's required
// field set.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/model"
)

var (
	compileOnce sync.Once
	schemas     map[model.Stage]*jsonschema.Schema
	compileErr  error
)

// stageSchema builds {"type":"object","required":[...]} for a stage.
func stageSchema(stage model.Stage) ([]byte, error) {
	fields := model.FieldsFor(stage)
	required := make([]string, len(fields))
	for i, f := range fields {
		required[i] = string(f)
	}
	return json.Marshal(map[string]any{
		"type":     "object",
		"required": required,
	})
}

func compileAll() {
	schemas = make(map[model.Stage]*jsonschema.Schema, len(model.Stages))
	for _, stage := range model.Stages {
		raw, err := stageSchema(stage)
		if err != nil {
			compileErr = err
			return
		}
		url := fmt.Sprintf("stage%d.json", int(stage))
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			compileErr = err
			return
		}
		s, err := compiler.Compile(url)
		if err != nil {
			compileErr = err
			return
		}
		schemas[stage] = s
	}
}

// Stage reports whether result contains every field required by stage.
// Empty values are accepted; only absent keys fail. Non-object input and
// unknown stages return false.
func Stage(result any, stage model.Stage) bool {
	compileOnce.Do(compileAll)
	if compileErr != nil {
		zap.L().Error("validate: compile stage schemas", zap.Error(compileErr))
		return false
	}

	schema, ok := schemas[stage]
	if !ok {
		zap.L().Warn("validate: unknown stage", zap.Int("stage", int(stage)))
		return false
	}

	doc, ok := normalize(result)
	if !ok {
		zap.L().Warn("validate: result is not an object",
			zap.Int("stage", int(stage)),
			zap.String("type", fmt.Sprintf("%T", result)),
		)
		return false
	}

	if err := schema.Validate(doc); err != nil {
		zap.L().Warn("validate: missing required fields",
			zap.Int("stage", int(stage)),
			zap.Any("missing", Missing(result, stage)),
		)
		return false
	}
	return true
}

// Missing lists the required fields of stage absent from result, in
// field order. Non-object input reports every field as missing.
func Missing(result any, stage model.Stage) []model.Field {
	fields := model.FieldsFor(stage)
	doc, ok := normalize(result)
	if !ok {
		return fields
	}
	var missing []model.Field
	for _, f := range fields {
		if _, present := doc[string(f)]; !present {
			missing = append(missing, f)
		}
	}
	return missing
}

// normalize converts the supported map shapes into the generic JSON form
// the schema validator expects. A nil map is not an object.
func normalize(result any) (map[string]any, bool) {
	switch v := result.(type) {
	case map[string]any:
		if v == nil {
			return nil, false
		}
		return v, true
	case map[string]string:
		if v == nil {
			return nil, false
		}
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, true
	case model.Record:
		if v == nil {
			return nil, false
		}
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[string(k)] = s
		}
		return out, true
	}
	return nil, false
}
