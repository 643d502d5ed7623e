package tools

import (
	"encoding/json"
	"math"

	"github.com/shaiso/Portfolium/internal/domain"
)

// stringParam извлекает строковый параметр.
// Отсутствующий необязательный параметр возвращает "".
func stringParam(tool domain.ToolName, params domain.Params, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", paramErrorf(tool, key, "expected string, got %T", v)
	}
	return s, nil
}

// intParam извлекает целое число; def используется, если параметра нет.
func intParam(tool domain.ToolName, params domain.Params, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, paramErrorf(tool, key, "expected integer, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, paramErrorf(tool, key, "expected integer, got %s", n)
		}
		return int(i), nil
	default:
		return 0, paramErrorf(tool, key, "expected integer, got %T", v)
	}
}

// floatParam извлекает необязательное число; nil, если параметра нет.
func floatParam(tool domain.ToolName, params domain.Params, key string) (*float64, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil, paramErrorf(tool, key, "expected number, got %s", n)
		}
		f = parsed
	default:
		return nil, paramErrorf(tool, key, "expected number, got %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, paramErrorf(tool, key, "expected finite number, got %v", f)
	}
	return &f, nil
}

// stringListParam извлекает список строк.
func stringListParam(tool domain.ToolName, params domain.Params, key string) ([]string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, paramErrorf(tool, key, "element %d: expected string, got %T", i, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, paramErrorf(tool, key, "expected list of strings, got %T", v)
	}
}

// decodeParam раскладывает значение параметра (обычно список объектов)
// в типизированную структуру через JSON.
func decodeParam(tool domain.ToolName, params domain.Params, key string, target any) error {
	v, ok := params[key]
	if !ok || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return paramErrorf(tool, key, "cannot encode value: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return paramErrorf(tool, key, "unexpected shape: %v", err)
	}
	return nil
}
