// Portfolium CLI - инструмент командной строки для выполнения планов
// и просмотра запусков, портфелей и инструментов через HTTP API.
//
// Использование:
//
//	portfolium [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	plan       Выполнение и проверка планов (exec работает без сервера)
//	run        Просмотр запусков
//	portfolio  Портфели
//	tools      Зарегистрированные инструменты
//	schedule   Расписания
package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shaiso/Portfolium/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "portfolium",
		Short:         "Portfolium CLI: staged plan execution against portfolios",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := "http://localhost:8080"
	if v := os.Getenv("PORTFOLIUM_API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewPlanCmd(clientFn, outputFn),
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewPortfolioCmd(clientFn, outputFn),
		cli.NewToolsCmd(clientFn, outputFn),
		cli.NewScheduleCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
