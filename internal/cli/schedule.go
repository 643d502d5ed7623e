package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для просмотра расписаний.
// Расписания задаются в конфигурации сервера, CLI их только показывает.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect scheduled plans",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List scheduled plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := clientFn().ListSchedules()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "CRON", "TIMEZONE", "ENABLED", "STAGES", "NEXT_DUE", "LAST_RUN"}
			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				rows[i] = []string{
					s.Name, s.CronExpr, s.Timezone, strconv.FormatBool(s.Enabled),
					itoa(s.Stages), s.NextDueAt, s.LastRunID,
				}
			}

			outputFn().Print(headers, rows, schedules)
			return nil
		},
	})

	return cmd
}

// NewToolsCmd создаёт группу команд для просмотра инструментов.
func NewToolsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect registered tools",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered tools and their parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := clientFn().ListTools()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "ACCESS", "REQUIRED", "OPTIONAL"}
			rows := make([][]string, len(tools))
			for i, t := range tools {
				rows[i] = []string{t.Name, t.Access, strings.Join(t.Required, ","), strings.Join(optionalParams(t), ",")}
			}

			outputFn().Print(headers, rows, tools)
			return nil
		},
	})

	return cmd
}

func optionalParams(t ToolResponse) []string {
	var out []string
	for _, p := range t.Params {
		if !p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
