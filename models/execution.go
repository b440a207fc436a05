package models

// Execution status values written by the runner program and the worker
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// ExecutionRequest represents a run pushed onto a host's queue (queue engine)
type ExecutionRequest struct {
	RunName     string            `json:"runName"`
	Host        string            `json:"host"`
	Artifacts   map[string]string `json:"artifacts"`
	ResultKey   string            `json:"resultKey"`
	SubmittedAt int64             `json:"submittedAt"`
	TimeoutSec  int               `json:"timeoutSec,omitempty"`
}

// ExecutionResult represents the result written by the runner program or the worker
type ExecutionResult struct {
	RunName      string `json:"runName"`
	Status       string `json:"status"`
	Output       string `json:"output,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Logs         string `json:"logs,omitempty"`
	DurationMs   int64  `json:"durationMs"`
}

// Outcome converts the result into a tagged RunOutcome
func (r ExecutionResult) Outcome() RunOutcome {
	if r.Status == StatusSuccess {
		return Success(r.Output)
	}
	reason := r.ErrorMessage
	if reason == "" {
		reason = "runner reported status " + r.Status
	}
	return Failure(reason)
}

// RunOutcome is either Success(value) or Failure(reason)
type RunOutcome struct {
	ok     bool
	value  string
	reason string
}

// Success builds a successful outcome carrying the function's return value
func Success(value string) RunOutcome {
	return RunOutcome{ok: true, value: value}
}

// Failure builds a failed outcome carrying the engine's failure detail
func Failure(reason string) RunOutcome {
	return RunOutcome{reason: reason}
}

func (o RunOutcome) IsSuccess() bool { return o.ok }
func (o RunOutcome) Value() string   { return o.value }
func (o RunOutcome) Reason() string  { return o.reason }
