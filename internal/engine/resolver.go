package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/tools"
)

// Output - выход предыдущего этапа.
type Output struct {
	Value   any
	Present bool
}

// NoOutput означает, что предыдущего этапа нет или он не дал выхода.
func NoOutput() Output {
	return Output{}
}

// OutputOf оборачивает значение как выход этапа.
func OutputOf(v any) Output {
	return Output{Value: v, Present: true}
}

// StageOutput вычисляет выход этапа по правилам domain.StageResult.Output.
func StageOutput(r domain.StageResult) Output {
	v, ok := r.Output()
	return Output{Value: v, Present: ok}
}

// ToolSource даёт доступ к схемам инструментов. *tools.Registry его реализует.
type ToolSource interface {
	Lookup(name domain.ToolName) (tools.Tool, error)
}

// AssetLister - результат, из которого можно получить список asset_id.
type AssetLister interface {
	AssetIDs() []string
}

// Resolve подставляет prev вместо каждого плейсхолдера этапа.
//
// Возвращает новый этап; исходный не изменяется. Подстановка учитывает тип
// целевого параметра из схемы инструмента:
//   - string_list принимает список строк, результат с AssetIDs()
//     или список таких значений (выход нескольких задач), который склеивается;
//   - string принимает строку или единственный элемент;
//   - integer/number принимают число или единственный элемент;
//   - object_list принимает любой список, форму проверяет сам инструмент.
//
// Если инструмент или параметр неизвестны, значение подставляется как есть.
// Ошибка - *ResolutionError с номером задачи, инструментом и параметром.
func Resolve(stageIndex int, stage domain.Stage, prev Output, source ToolSource) (domain.Stage, error) {
	resolved := domain.Stage{Tasks: make([]domain.Task, len(stage.Tasks))}

	for i, task := range stage.Tasks {
		keys := task.Params.PlaceholderKeys()
		if len(keys) == 0 {
			resolved.Tasks[i] = task
			continue
		}

		params := task.Params.Clone()
		for _, key := range keys {
			if !prev.Present {
				msg := "previous stage produced no output"
				if stageIndex == 0 {
					msg = "placeholder used in the first stage"
				}
				return domain.Stage{}, &ResolutionError{
					Stage: stageIndex, Task: i, Tool: task.Tool, Param: key,
					Message: msg, Err: ErrNoPreviousOutput,
				}
			}

			value, err := coerce(paramKind(source, task.Tool, key), prev.Value)
			if err != nil {
				return domain.Stage{}, &ResolutionError{
					Stage: stageIndex, Task: i, Tool: task.Tool, Param: key,
					Message: err.Error(), Err: ErrShapeMismatch,
				}
			}
			params[key] = value
		}
		resolved.Tasks[i] = task.WithParams(params)
	}

	return resolved, nil
}

func paramKind(source ToolSource, name domain.ToolName, param string) tools.ParamKind {
	if source == nil {
		return ""
	}
	tool, err := source.Lookup(name)
	if err != nil {
		return ""
	}
	p, ok := tool.Schema().Param(param)
	if !ok {
		return ""
	}
	return p.Kind
}

func coerce(kind tools.ParamKind, v any) (any, error) {
	switch kind {
	case tools.KindStringList:
		return toStringList(v)
	case tools.KindString:
		return toString(v)
	case tools.KindInteger, tools.KindNumber:
		return toNumber(kind, v)
	case tools.KindObjectList:
		if v == nil || reflect.ValueOf(v).Kind() != reflect.Slice {
			return nil, fmt.Errorf("expected a list, previous output is %s", describe(v))
		}
		return v, nil
	default:
		return v, nil
	}
}

func toStringList(v any) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...), nil
	case string:
		return []string{x}, nil
	case AssetLister:
		return x.AssetIDs(), nil
	case []any:
		var out []string
		for i, item := range x {
			ids, err := toStringList(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, ids...)
		}
		if out == nil {
			out = []string{}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, previous output is %s", describe(v))
	}
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []string:
		if len(x) == 1 {
			return x[0], nil
		}
		return "", fmt.Errorf("expected a single value, previous output has %d elements", len(x))
	case AssetLister:
		ids := x.AssetIDs()
		if len(ids) == 1 {
			return ids[0], nil
		}
		return "", fmt.Errorf("expected a single value, previous output has %d assets", len(ids))
	case []any:
		if len(x) == 1 {
			return toString(x[0])
		}
		return "", fmt.Errorf("expected a single value, previous output has %d elements", len(x))
	default:
		return "", fmt.Errorf("expected a string, previous output is %s", describe(v))
	}
}

func toNumber(kind tools.ParamKind, v any) (any, error) {
	var f float64
	switch x := v.(type) {
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case float64:
		f = x
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("expected a number, previous output is %q", x.String())
		}
		f = parsed
	case []any:
		if len(x) == 1 {
			return toNumber(kind, x[0])
		}
		return nil, fmt.Errorf("expected a single number, previous output has %d elements", len(x))
	default:
		return nil, fmt.Errorf("expected a number, previous output is %s", describe(v))
	}

	if kind == tools.KindInteger {
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("expected an integer, previous output is %v", f)
		}
		return int(f), nil
	}
	return f, nil
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
