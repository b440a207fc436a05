package models

// CodeSubmission is a parsed function submitted for remote execution.
// FunctionName, Params and Results come from parsing Source, never from the caller.
type CodeSubmission struct {
	Source       string   `json:"source"`
	FunctionName string   `json:"function_name"`
	Params       []Param  `json:"params,omitempty"`
	Results      []string `json:"results,omitempty"`
	Generic      bool     `json:"generic,omitempty"`
}

// Param describes one parameter of the submitted function
type Param struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Variadic bool   `json:"variadic,omitempty"`
}

// ReturnsError reports whether the last result of the function is an error
func (s CodeSubmission) ReturnsError() bool {
	return len(s.Results) > 0 && s.Results[len(s.Results)-1] == "error"
}

// HostTarget is the remote host a run is bound to
type HostTarget struct {
	Hostname string `json:"hostname"`
}
