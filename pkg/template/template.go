// Package template provides templating for dynamic node configuration.
// Node configs may reference upstream outputs, instance variables and
// trigger data through Go template expressions.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/stratumflow/stratum/pkg/models"
)

// RenderWithContext renders a template against the execution context of a
// running instance. Node outputs are exposed under .outputs keyed by node id.
func RenderWithContext(input string, ectx *models.ExecutionContext) (any, error) {
	outputs := make(map[string]any, len(ectx.NodeOutputs))
	for nodeID, out := range ectx.NodeOutputs {
		outputs[nodeID] = out.Data
	}

	data := map[string]any{
		"outputs":      outputs,
		"variables":    ectx.Variables,
		"vars":         ectx.Variables,
		"trigger_data": ectx.TriggerData,
		"metadata":     ectx.Metadata,
		"env":          getEnvVars(),
		"instance": map[string]any{
			"id":            ectx.InstanceID,
			"definition_id": ectx.DefinitionID,
		},
	}

	return Render(input, data)
}

// Render executes a template and coerces the result: JSON-looking output is
// decoded, then numbers and booleans, then plain string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("transform").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderMap renders every string value of a config map, recursing into
// nested maps and slices.
func RenderMap(config map[string]any, ectx *models.ExecutionContext) (map[string]any, error) {
	rendered := make(map[string]any, len(config))

	for key, value := range config {
		out, err := renderValue(value, ectx)
		if err != nil {
			return nil, fmt.Errorf("failed to render config key %q: %w", key, err)
		}

		rendered[key] = out
	}

	return rendered, nil
}

func renderValue(value any, ectx *models.ExecutionContext) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "{{") {
			return v, nil
		}

		return RenderWithContext(v, ectx)
	case map[string]any:
		return RenderMap(v, ectx)
	case []any:
		rendered := make([]any, len(v))

		for i, item := range v {
			out, err := renderValue(item, ectx)
			if err != nil {
				return nil, err
			}

			rendered[i] = out
		}

		return rendered, nil
	default:
		return value, nil
	}
}

func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
