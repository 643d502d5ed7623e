package tools

import (
	"context"
	"strings"

	"github.com/shaiso/Portfolium/internal/domain"
)

// Tool - интерфейс инструмента.
type Tool interface {
	// Name возвращает имя инструмента.
	Name() domain.ToolName

	// Access сообщает, изменяет ли инструмент портфель.
	Access() domain.Access

	// Schema возвращает описание параметров.
	Schema() Schema

	// Invoke выполняет инструмент. Вызов завершается ровно один раз:
	// результатом или ошибкой. Инструмент должен уважать ctx.
	Invoke(ctx context.Context, params domain.Params) (any, error)
}

// ParamKind - тип значения параметра.
//
// Резолвер плейсхолдеров использует его, чтобы понять, какую форму
// выхода предыдущего этапа принимает параметр.
type ParamKind string

const (
	KindString     ParamKind = "string"
	KindInteger    ParamKind = "integer"
	KindNumber     ParamKind = "number"
	KindStringList ParamKind = "string_list"
	KindObjectList ParamKind = "object_list"
)

// Param - описание одного параметра.
type Param struct {
	Name        string    `json:"name"`
	Kind        ParamKind `json:"kind"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
}

// Schema - описание инструмента для планировщика и API.
type Schema struct {
	Name        domain.ToolName `json:"name"`
	Description string          `json:"description"`
	Access      domain.Access   `json:"access"`
	Params      []Param         `json:"parameters"`
}

// Param ищет параметр по имени.
func (s Schema) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Required возвращает имена обязательных параметров в порядке объявления.
func (s Schema) Required() []string {
	var out []string
	for _, p := range s.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// CheckRequired проверяет, что все обязательные параметры переданы.
func (s Schema) CheckRequired(params domain.Params) error {
	var missing []string
	for _, name := range s.Required() {
		if v, ok := params[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return paramErrorf(s.Name, "", "missing required parameters: %s", strings.Join(missing, ", "))
	}
	return nil
}

// base - общая часть всех встроенных инструментов.
type base struct {
	schema Schema
}

func (b *base) Name() domain.ToolName { return b.schema.Name }
func (b *base) Access() domain.Access { return b.schema.Access }
func (b *base) Schema() Schema        { return b.schema }

// prepare проверяет контекст и обязательные параметры перед вызовом.
func (b *base) prepare(ctx context.Context, params domain.Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.schema.CheckRequired(params)
}
