package tools

import (
	"errors"
	"fmt"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/portfolio"
)

// Ошибки инструментов.
var (
	// ErrToolNotFound: инструмент не зарегистрирован.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams: инструмент отклонил параметры.
	ErrInvalidParams = errors.New("invalid tool parameters")

	// ErrExecution: инструмент не смог выполнить операцию.
	ErrExecution = errors.New("tool execution failed")
)

// ParamError - ошибка конкретного параметра.
type ParamError struct {
	Tool    domain.ToolName
	Param   string
	Message string
}

// Error реализует интерфейс error.
func (e *ParamError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
	}
	return fmt.Sprintf("tool %s: parameter %s: %s", e.Tool, e.Param, e.Message)
}

// Unwrap возвращает ErrInvalidParams.
func (e *ParamError) Unwrap() error {
	return ErrInvalidParams
}

func paramErrorf(tool domain.ToolName, param, format string, args ...any) *ParamError {
	return &ParamError{Tool: tool, Param: param, Message: fmt.Sprintf(format, args...)}
}

// classify переводит ошибку хранилища в ошибку инструмента.
// Ошибки аргументов становятся ErrInvalidParams, остальные ErrExecution.
func classify(tool domain.ToolName, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, portfolio.ErrInvalidArgument) {
		return fmt.Errorf("%w: %s: %w", ErrInvalidParams, tool, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrExecution, tool, err)
}
