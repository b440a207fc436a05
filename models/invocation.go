package models

// RunIdentity names one run and its staging directory
type RunIdentity struct {
	Name string `json:"name"`
}

// RunRequest owns everything one gateway invocation needs.
// It exists only after both the source and the host passed validation.
type RunRequest struct {
	Submission CodeSubmission
	Host       HostTarget
	Identity   RunIdentity
	Args       map[string]interface{}
	StagingDir string
	Handle     *ExecutionHandle
}

// ExecutionHandle references one in-flight remote run
type ExecutionHandle struct {
	RunName   string `json:"run_name"`
	Host      string `json:"host"`
	Engine    string `json:"engine"`
	RemoteDir string `json:"remote_dir,omitempty"`
	ResultKey string `json:"result_key,omitempty"`
}

// RunCodeRequest represents the request body for run_code
type RunCodeRequest struct {
	FunctionSource string                 `json:"function_source"`
	Hostname       string                 `json:"hostname"`
	FunctionArgs   map[string]interface{} `json:"function_args"`
}

// RunResponse is the only shape returned to callers: exactly one of Result or Error is set
type RunResponse struct {
	Result *string `json:"Result,omitempty"`
	Error  *string `json:"Error,omitempty"`
}

// ResultResponse builds a success response
func ResultResponse(value string) RunResponse {
	return RunResponse{Result: &value}
}

// ErrorResponse builds an error response
func ErrorResponse(message string) RunResponse {
	return RunResponse{Error: &message}
}

// IsError reports whether the response carries an error
func (r RunResponse) IsError() bool {
	return r.Error != nil
}
