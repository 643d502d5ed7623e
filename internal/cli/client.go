package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RunResponse - запуск плана из API.
type RunResponse struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	Source         string          `json:"source,omitempty"`
	Confidence     *float64        `json:"confidence,omitempty"`
	Error          string          `json:"error,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	TotalStages    int             `json:"total_stages"`
	FailedTasks    int             `json:"failed_tasks"`
	Stages         []StageResponse `json:"stages,omitempty"`
	Abort          *AbortResponse  `json:"abort,omitempty"`
	CreatedAt      string          `json:"created_at"`
	StartedAt      string          `json:"started_at,omitempty"`
	FinishedAt     string          `json:"finished_at,omitempty"`
	DurationMs     int64           `json:"duration_ms,omitempty"`
}

// StageResponse - итоги этапа из API.
type StageResponse struct {
	Index int            `json:"index"`
	Tasks []TaskResponse `json:"tasks"`
}

// TaskResponse - итог задачи из API.
type TaskResponse struct {
	Index      int              `json:"index"`
	Tool       string           `json:"tool_name"`
	Params     map[string]any   `json:"parameters,omitempty"`
	Status     string           `json:"status"`
	Summary    string           `json:"summary,omitempty"`
	Result     any              `json:"result,omitempty"`
	Failure    *FailureResponse `json:"failure,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

// FailureResponse - причина неуспеха задачи.
type FailureResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// AbortResponse - где и почему план остановлен.
type AbortResponse struct {
	Stage   int    `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ValidateResponse - результат проверки плана.
type ValidateResponse struct {
	Valid  bool `json:"valid"`
	Stages int  `json:"stages"`
	Tasks  int  `json:"tasks"`
}

// ConstituentResponse - актив портфеля.
type ConstituentResponse struct {
	AssetID string  `json:"asset_id"`
	Weight  float64 `json:"weight"`
	Sector  string  `json:"sector"`
}

// PortfolioResponse - состав портфеля из API.
type PortfolioResponse struct {
	ID           string                `json:"id"`
	Assets       int                   `json:"assets"`
	TotalWeight  float64               `json:"total_weight"`
	Constituents []ConstituentResponse `json:"constituents"`
}

// SectorWeightResponse - суммарный вес сектора.
type SectorWeightResponse struct {
	Sector string  `json:"sector"`
	Weight float64 `json:"weight"`
}

// ToolParamResponse - параметр инструмента.
type ToolParamResponse struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// ToolResponse - инструмент из API.
type ToolResponse struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Access      string              `json:"access"`
	Params      []ToolParamResponse `json:"parameters"`
	Required    []string            `json:"required"`
}

// ScheduleResponse - расписание из API.
type ScheduleResponse struct {
	Name      string `json:"name"`
	CronExpr  string `json:"cron"`
	Timezone  string `json:"timezone,omitempty"`
	Enabled   bool   `json:"enabled"`
	Stages    int    `json:"stages"`
	NextDueAt string `json:"next_due_at,omitempty"`
	LastRunAt string `json:"last_run_at,omitempty"`
	LastRunID string `json:"last_run_id,omitempty"`
}

// --- Request types ---

// PlanRequest - запрос на выполнение или проверку плана.
type PlanRequest struct {
	Plan       json.RawMessage `json:"plan"`
	Confidence *float64        `json:"confidence,omitempty"`
}

// ListRunsOpts - параметры фильтрации runs.
type ListRunsOpts struct {
	Status string
	Source string
	Limit  int
	Offset int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client - HTTP-клиент для Portfolium API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// --- Plans ---

// ExecutePlan выполняет план синхронно.
func (c *Client) ExecutePlan(req PlanRequest) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/plans", req, &run)
	return &run, err
}

// SubmitPlan ставит план в очередь.
func (c *Client) SubmitPlan(req PlanRequest) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/plans/async", req, &run)
	return &run, err
}

// ValidatePlan проверяет план на сервере.
func (c *Client) ValidatePlan(req PlanRequest) (*ValidateResponse, error) {
	var result ValidateResponse
	err := c.post("/api/v1/plans/validate", req, &result)
	return &result, err
}

// --- Runs ---

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Source != "" {
		params.Set("source", opts.Source)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// --- Portfolios ---

// ListPortfolios возвращает идентификаторы портфелей.
func (c *Client) ListPortfolios() ([]string, error) {
	var ids []string
	err := c.list("/api/v1/portfolios", nil, &ids)
	return ids, err
}

// GetPortfolio возвращает состав портфеля.
func (c *Client) GetPortfolio(id string) (*PortfolioResponse, error) {
	var p PortfolioResponse
	err := c.get("/api/v1/portfolios/"+url.PathEscape(id), &p)
	return &p, err
}

// GeneratePortfolio создаёт случайный портфель.
func (c *Client) GeneratePortfolio(id string) (*PortfolioResponse, error) {
	var p PortfolioResponse
	err := c.post("/api/v1/portfolios/"+url.PathEscape(id), nil, &p)
	return &p, err
}

// SectorWeights возвращает веса секторов портфеля.
func (c *Client) SectorWeights(id string) ([]SectorWeightResponse, error) {
	var weights []SectorWeightResponse
	err := c.list("/api/v1/portfolios/"+url.PathEscape(id)+"/sectors", nil, &weights)
	return weights, err
}

// --- Catalog ---

// ListTools возвращает зарегистрированные инструменты.
func (c *Client) ListTools() ([]ToolResponse, error) {
	var tools []ToolResponse
	err := c.list("/api/v1/tools", nil, &tools)
	return tools, err
}

// ListSchedules возвращает расписания.
func (c *Client) ListSchedules() ([]ScheduleResponse, error) {
	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", nil, &schedules)
	return schedules, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// APIError - ошибка, возвращённая сервером.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode}
	}

	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
