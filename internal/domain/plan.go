package domain

import (
	"encoding/json"
	"sort"
)

// PlaceholderToken - зарезервированное значение параметра: "подставить сюда
// результат предыдущего этапа". Литерал с таким значением передать нельзя.
const PlaceholderToken = "$previous"

// Placeholder - значение плейсхолдера в Go-коде.
// В JSON/YAML сериализуется как PlaceholderToken.
type Placeholder struct{}

// MarshalJSON реализует json.Marshaler.
func (Placeholder) MarshalJSON() ([]byte, error) {
	return json.Marshal(PlaceholderToken)
}

// IsPlaceholder проверяет, является ли значение параметра плейсхолдером.
func IsPlaceholder(v any) bool {
	switch x := v.(type) {
	case Placeholder:
		return true
	case *Placeholder:
		return x != nil
	case string:
		return x == PlaceholderToken
	default:
		return false
	}
}

// Params - параметры вызова инструмента.
type Params map[string]any

// Clone возвращает поверхностную копию параметров.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Has проверяет наличие параметра.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// PlaceholderKeys возвращает отсортированные имена параметров с плейсхолдером.
func (p Params) PlaceholderKeys() []string {
	var keys []string
	for k, v := range p {
		if IsPlaceholder(v) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// PortfolioID возвращает portfolio_id, если он задан строкой.
func (p Params) PortfolioID() string {
	if s, ok := p["portfolio_id"].(string); ok {
		return s
	}
	return ""
}

// Task - один вызов инструмента с параметрами.
//
// После создания Task не меняется: резолвер плейсхолдеров строит новый Task
// через WithParams.
type Task struct {
	// Tool - имя инструмента.
	Tool ToolName `json:"tool_name" yaml:"tool_name"`

	// Params - параметры вызова; могут содержать плейсхолдер.
	Params Params `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// UnmarshalJSON принимает и короткие ключи tool/params.
func (t *Task) UnmarshalJSON(data []byte) error {
	var raw struct {
		Tool       ToolName `json:"tool"`
		ToolName   ToolName `json:"tool_name"`
		Params     Params   `json:"params"`
		Parameters Params   `json:"parameters"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	t.Tool = raw.ToolName
	if t.Tool == "" {
		t.Tool = raw.Tool
	}
	t.Params = raw.Parameters
	if t.Params == nil {
		t.Params = raw.Params
	}
	return nil
}

// WithParams возвращает копию задачи с другими параметрами.
func (t Task) WithParams(params Params) Task {
	return Task{Tool: t.Tool, Params: params}
}

// HasPlaceholder проверяет, ссылается ли задача на выход предыдущего этапа.
func (t Task) HasPlaceholder() bool {
	return len(t.Params.PlaceholderKeys()) > 0
}

// Stage - набор задач, которые выполняются одновременно.
// Порядок задач важен только для детерминированного порядка результатов.
type Stage struct {
	Tasks []Task `json:"tasks" yaml:"tasks"`
}

// HasPlaceholder проверяет, есть ли в этапе хотя бы один плейсхолдер.
func (s Stage) HasPlaceholder() bool {
	for _, t := range s.Tasks {
		if t.HasPlaceholder() {
			return true
		}
	}
	return false
}

// Plan - упорядоченная последовательность этапов.
type Plan struct {
	Stages []Stage `json:"stages" yaml:"stages"`
}

// NewPlan собирает план из этапов, заданных списками задач.
func NewPlan(stages ...[]Task) Plan {
	plan := Plan{Stages: make([]Stage, len(stages))}
	for i, tasks := range stages {
		plan.Stages[i] = Stage{Tasks: tasks}
	}
	return plan
}

// TaskCount возвращает общее число задач в плане.
func (p Plan) TaskCount() int {
	n := 0
	for _, s := range p.Stages {
		n += len(s.Tasks)
	}
	return n
}
