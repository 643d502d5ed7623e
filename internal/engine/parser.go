package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Portfolium/internal/domain"
)

// Format - формат описания плана.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath определяет формат по расширению файла. По умолчанию JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// rawPlan - все принимаемые формы плана верхнего уровня.
type rawPlan struct {
	// Stages - этапы: объекты {"tasks": [...]} или просто списки задач.
	Stages []json.RawMessage `json:"stages"`

	// Tasks - DAG-форма: задачи с id и depends_on.
	Tasks []DAGTask `json:"tasks"`

	// ToolCalls - последовательный список вызовов: каждый становится отдельным этапом.
	ToolCalls []domain.Task `json:"tool_calls"`
}

// ParsePlan разбирает план в указанном формате.
//
// Принимаемые формы:
//
//	[[task, ...], [task, ...]]                    - список этапов
//	[{"tasks": [...]}, ...]                       - список этапов-объектов
//	{"stages": [...]}                             - то же, в обёртке
//	{"tasks": [{"id", "depends_on", ...}]}        - DAG, раскладывается по этапам
//	{"tool_calls": [task, ...]}                   - по одной задаче на этап
//
// Задача: {"tool_name": "...", "parameters": {...}} (или tool/params).
func ParsePlan(data []byte, format Format) (domain.Plan, error) {
	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return domain.Plan{}, err
		}
		data = converted
	}
	return parseJSON(data)
}

func parseJSON(data []byte) (domain.Plan, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return domain.Plan{}, ErrEmptyPlan
	}

	if data[0] == '[' {
		var stages []json.RawMessage
		if err := json.Unmarshal(data, &stages); err != nil {
			return domain.Plan{}, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
		}
		return parseStages(stages)
	}

	var raw rawPlan
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Plan{}, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}

	switch {
	case len(raw.Stages) > 0:
		return parseStages(raw.Stages)
	case len(raw.Tasks) > 0:
		return LayerTasks(raw.Tasks)
	case len(raw.ToolCalls) > 0:
		plan := domain.Plan{Stages: make([]domain.Stage, len(raw.ToolCalls))}
		for i, call := range raw.ToolCalls {
			plan.Stages[i] = domain.Stage{Tasks: []domain.Task{call}}
		}
		return plan, nil
	default:
		return domain.Plan{}, ErrEmptyPlan
	}
}

func parseStages(raw []json.RawMessage) (domain.Plan, error) {
	plan := domain.Plan{Stages: make([]domain.Stage, len(raw))}

	for i, msg := range raw {
		msg = bytes.TrimSpace(msg)
		if len(msg) > 0 && msg[0] == '[' {
			if err := json.Unmarshal(msg, &plan.Stages[i].Tasks); err != nil {
				return domain.Plan{}, fmt.Errorf("%w: stage %d: %v", ErrMalformedPlan, i, err)
			}
			continue
		}
		if err := json.Unmarshal(msg, &plan.Stages[i]); err != nil {
			return domain.Plan{}, fmt.Errorf("%w: stage %d: %v", ErrMalformedPlan, i, err)
		}
	}

	return plan, nil
}

// yamlToJSON переводит YAML-документ в JSON, чтобы разбирать обе формы одним кодом.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}

	normalized, err := normalizeYAML(doc)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	return out, nil
}

// normalizeYAML приводит map[any]any (встречается во вложенных документах) к map[string]any.
func normalizeYAML(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			n, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			x[k] = n
		}
		return x, nil
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%w: non-string key %v", ErrMalformedPlan, k)
			}
			n, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		for i, val := range x {
			n, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			x[i] = n
		}
		return x, nil
	default:
		return v, nil
	}
}

// KnownToolFunc сообщает, зарегистрирован ли инструмент.
type KnownToolFunc func(domain.ToolName) bool

// Validate выполняет структурную валидацию плана.
//
// Проверяет:
// - Наличие этапов
// - Наличие задач в каждом этапе
// - Имена инструментов (через known; nil означает domain.ToolName.IsKnown)
// - Что плейсхолдер занимает значение параметра целиком
//
// Плейсхолдер в первом этапе здесь не проверяется: это ошибка выполнения,
// план с ним останавливается до запуска первого этапа.
func Validate(plan domain.Plan, known KnownToolFunc) error {
	if known == nil {
		known = domain.ToolName.IsKnown
	}

	if len(plan.Stages) == 0 {
		return NewValidationError(-1, -1, "stages", "plan has no stages", ErrEmptyPlan)
	}

	for i, stage := range plan.Stages {
		if len(stage.Tasks) == 0 {
			return NewValidationError(i, -1, "tasks", "stage has no tasks", ErrEmptyStage)
		}

		for j, task := range stage.Tasks {
			if task.Tool == "" {
				return NewValidationError(i, j, "tool_name", "task has empty tool name", ErrUnknownTool)
			}
			if !known(task.Tool) {
				return NewValidationError(i, j, "tool_name",
					fmt.Sprintf("unknown tool: %s", task.Tool), ErrUnknownTool)
			}
			if key, ok := nestedPlaceholder(task.Params); ok {
				return NewValidationError(i, j, key,
					fmt.Sprintf("parameter %s: %s must be the whole value, not an element", key, domain.PlaceholderToken),
					ErrNestedPlaceholder)
			}
		}
	}

	return nil
}

// nestedPlaceholder возвращает первый (по имени) параметр, внутри которого
// плейсхолдер стоит элементом списка или полем объекта.
func nestedPlaceholder(params domain.Params) (string, bool) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := params[k]
		if domain.IsPlaceholder(v) {
			continue
		}
		if containsPlaceholder(v) {
			return k, true
		}
	}
	return "", false
}

func containsPlaceholder(v any) bool {
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			if domain.IsPlaceholder(e) || containsPlaceholder(e) {
				return true
			}
		}
	case []string:
		for _, e := range x {
			if e == domain.PlaceholderToken {
				return true
			}
		}
	case map[string]any:
		for _, e := range x {
			if domain.IsPlaceholder(e) || containsPlaceholder(e) {
				return true
			}
		}
	}
	return false
}
