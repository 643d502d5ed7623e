package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, os.Stderr, jsonMode)
}

// NewOutputTo создаёт Output с заданными потоками.
func NewOutputTo(w, errW io.Writer, jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	// Заголовки
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	// Разделитель
	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	// Строки данных
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	color.New(color.FgGreen).Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	color.New(color.FgRed).Fprintln(o.errW, "Error: "+msg)
}

// statusColor - цвет итогового статуса запуска.
func statusColor(status string) color.Attribute {
	switch status {
	case "COMPLETED":
		return color.FgGreen
	case "ABORTED", "FAILED":
		return color.FgRed
	default:
		return color.FgYellow
	}
}

// Run выводит запуск: сводку и таблицу итогов задач.
func (o *Output) Run(run *RunResponse) {
	if o.jsonMode {
		o.JSON(run)
		return
	}

	o.Table(
		[]string{"ID", "STATUS", "SOURCE", "STAGES", "FAILED", "DURATION"},
		[][]string{{
			run.ID, run.Status, run.Source, strconv.Itoa(run.TotalStages),
			strconv.Itoa(run.FailedTasks), formatDuration(run.DurationMs),
		}},
	)

	if len(run.Stages) > 0 {
		fmt.Fprintln(o.w)
		o.Table([]string{"STAGE", "TASK", "TOOL", "STATUS", "DETAILS"}, taskRows(run.Stages))
	}

	color.New(statusColor(run.Status)).Fprintf(o.errW, "Run %s: %s\n", run.ID, run.Status)

	if run.Abort != nil {
		fmt.Fprintf(o.w, "\nAborted at stage %d: %s: %s\n", run.Abort.Stage, run.Abort.Kind, run.Abort.Message)
	} else if run.Error != "" {
		fmt.Fprintf(o.w, "\nError: %s\n", run.Error)
	}
}

func taskRows(stages []StageResponse) [][]string {
	var rows [][]string
	for _, s := range stages {
		for _, t := range s.Tasks {
			details := t.Summary
			if t.Failure != nil {
				details = t.Failure.Kind + ": " + t.Failure.Message
			}
			rows = append(rows, []string{strconv.Itoa(s.Index), strconv.Itoa(t.Index), t.Tool, t.Status, details})
		}
	}
	return rows
}

func formatDuration(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return strconv.FormatInt(ms, 10) + "ms"
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w*100, 'f', 2, 64) + "%"
}
