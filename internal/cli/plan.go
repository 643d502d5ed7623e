package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/engine"
	"github.com/shaiso/Portfolium/internal/orchestrator"
	"github.com/shaiso/Portfolium/internal/portfolio"
	"github.com/shaiso/Portfolium/internal/tools"
)

// NewPlanCmd создаёт группу команд для выполнения планов.
func NewPlanCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Execute and validate plans",
	}

	cmd.AddCommand(
		newPlanRunCmd(clientFn, outputFn),
		newPlanSubmitCmd(clientFn, outputFn),
		newPlanValidateCmd(clientFn, outputFn),
		newPlanExecCmd(outputFn),
	)

	return cmd
}

// planFlags - общие флаги команд, читающих план из файла.
type planFlags struct {
	file       string
	confidence float64
}

func (f *planFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Plan file (.json, .yaml); '-' reads JSON from stdin")
	cmd.Flags().Float64Var(&f.confidence, "confidence", 0, "Planner confidence in [0, 1]")
	cmd.MarkFlagRequired("file")
}

// request читает план и собирает PlanRequest.
// YAML переводится в JSON локально.
func (f *planFlags) request(cmd *cobra.Command) (PlanRequest, error) {
	plan, err := LoadPlan(f.file, cmd.InOrStdin())
	if err != nil {
		return PlanRequest{}, err
	}

	data, err := json.Marshal(plan)
	if err != nil {
		return PlanRequest{}, fmt.Errorf("failed to encode plan: %w", err)
	}

	req := PlanRequest{Plan: data}
	if cmd.Flags().Changed("confidence") {
		c := f.confidence
		req.Confidence = &c
	}
	return req, nil
}

// LoadPlan читает и разбирает план из файла. Формат определяется по расширению.
func LoadPlan(path string, stdin io.Reader) (domain.Plan, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return domain.Plan{}, fmt.Errorf("failed to read plan: %w", err)
	}

	return engine.ParsePlan(data, engine.FormatFromPath(path))
}

func newPlanRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags planFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a plan on the server and wait for results",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(cmd)
			if err != nil {
				return err
			}

			run, err := clientFn().ExecutePlan(req)
			if err != nil {
				return err
			}

			outputFn().Run(run)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newPlanSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags planFlags

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a plan for asynchronous execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(cmd)
			if err != nil {
				return err
			}

			out := outputFn()
			run, err := clientFn().SubmitPlan(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run queued: %s", run.ID))
			out.Print(
				[]string{"ID", "STATUS", "STAGES", "CREATED"},
				[][]string{{run.ID, run.Status, fmt.Sprint(run.TotalStages), run.CreatedAt}},
				run,
			)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newPlanValidateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags planFlags
	var local bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a plan without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			if local {
				plan, err := LoadPlan(flags.file, cmd.InOrStdin())
				if err != nil {
					return err
				}
				if err := engine.Validate(plan, nil); err != nil {
					return err
				}
				result := ValidateResponse{Valid: true, Stages: len(plan.Stages), Tasks: plan.TaskCount()}
				printValidation(out, &result)
				return nil
			}

			req, err := flags.request(cmd)
			if err != nil {
				return err
			}
			result, err := clientFn().ValidatePlan(req)
			if err != nil {
				return err
			}
			printValidation(out, result)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&local, "local", false, "Validate against the built-in tool set without contacting the server")
	return cmd
}

func printValidation(out *Output, result *ValidateResponse) {
	out.Print(
		[]string{"VALID", "STAGES", "TASKS"},
		[][]string{{fmt.Sprint(result.Valid), fmt.Sprint(result.Stages), fmt.Sprint(result.Tasks)}},
		result,
	)
}

// ExecOptions - параметры локального выполнения плана.
type ExecOptions struct {
	// Portfolios генерируются до запуска плана.
	Portfolios      []string
	Seed            uint64
	AssetsPerSector int
	PortfolioSize   int
	Strict          bool
	TaskTimeout     time.Duration
}

func newPlanExecCmd(outputFn func() *Output) *cobra.Command {
	var flags planFlags
	var opts ExecOptions

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute a plan in-process against a freshly generated portfolio store",
		Long: `Execute a plan without a server. Portfolios listed in --portfolio are
generated from --seed before the plan runs; state is discarded on exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := LoadPlan(flags.file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			run, err := ExecLocal(cmd.Context(), plan, opts)
			if err != nil {
				return err
			}

			outputFn().Run(run)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Plan file (.json, .yaml); '-' reads JSON from stdin")
	cmd.MarkFlagRequired("file")
	cmd.Flags().StringSliceVar(&opts.Portfolios, "portfolio", []string{"P1"}, "Portfolios to generate before execution (repeatable)")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 42, "Random seed for prices and portfolios")
	cmd.Flags().IntVar(&opts.AssetsPerSector, "assets-per-sector", 4000, "Assets per sector in the universe")
	cmd.Flags().IntVar(&opts.PortfolioSize, "portfolio-size", 100, "Assets in each generated portfolio")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Reject stages that read and write the same portfolio")
	cmd.Flags().DurationVar(&opts.TaskTimeout, "task-timeout", 0, "Per-task timeout (0 disables)")

	return cmd
}

// ExecLocal выполняет план в текущем процессе и возвращает запуск в виде ответа API.
// Остановка плана ошибкой не считается.
func ExecLocal(ctx context.Context, plan domain.Plan, opts ExecOptions) (*RunResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := portfolio.New(portfolio.Config{
		Seed:            opts.Seed,
		AssetsPerSector: opts.AssetsPerSector,
		PortfolioSize:   opts.PortfolioSize,
		Logger:          logger,
	})
	for _, id := range opts.Portfolios {
		if _, err := store.Generate(id); err != nil {
			return nil, fmt.Errorf("generate portfolio %s: %w", id, err)
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Registry:    tools.DefaultRegistry(store),
		TaskTimeout: opts.TaskTimeout,
		Strict:      opts.Strict,
		Logger:      logger,
	})
	if err := orch.Validate(plan); err != nil {
		return nil, err
	}

	run := domain.NewPlanRun(plan, "cli")
	run.MarkRunning()

	result, err := orch.Run(ctx, plan)
	if err != nil && !errors.Is(err, orchestrator.ErrPlanAborted) {
		return nil, err
	}
	run.MarkFinished(result, err)

	return runFromDomain(run), nil
}

// runFromDomain переводит запуск в форму ответа API.
func runFromDomain(run *domain.PlanRun) *RunResponse {
	resp := &RunResponse{
		ID:          run.ID.String(),
		Status:      string(run.Status),
		Source:      run.Source,
		Error:       run.Error,
		TotalStages: len(run.Plan.Stages),
		CreatedAt:   run.CreatedAt.Format(time.RFC3339),
		DurationMs:  run.Duration().Milliseconds(),
	}
	if run.Result == nil {
		return resp
	}

	for _, s := range run.Result.Stages {
		resp.FailedTasks += s.Failed()

		stage := StageResponse{Index: s.Index, Tasks: make([]TaskResponse, len(s.Outcomes))}
		for i, o := range s.Outcomes {
			task := TaskResponse{
				Index:      o.Index,
				Tool:       string(o.Task.Tool),
				Params:     o.Task.Params,
				Status:     string(o.Status),
				Summary:    o.Summary,
				Result:     o.Result,
				DurationMs: o.Duration().Milliseconds(),
			}
			if o.Failure != nil {
				task.Failure = &FailureResponse{Kind: string(o.Failure.Kind), Message: o.Failure.Message}
			}
			stage.Tasks[i] = task
		}
		resp.Stages = append(resp.Stages, stage)
	}

	if a := run.Result.Abort; a != nil && a.Failure != nil {
		resp.Abort = &AbortResponse{Stage: a.StageIndex, Kind: string(a.Failure.Kind), Message: a.Failure.Message}
	}
	return resp
}
