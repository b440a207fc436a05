package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ljbeal/MCP-remotemanager/models"
)

// Staged artifact names
const (
	ProgramFile  = "main.go"
	FunctionFile = "function.go"
	ArgsFile     = "args.json"
	ScriptFile   = "run.sh"
	ResultFile   = "result.json"
	StdoutFile   = "stdout.log"
	StderrFile   = "stderr.log"
	ExitCodeFile = "exit_code"
)

// Every identifier the generated main declares carries this prefix so it cannot
// shadow the submitted function's name.
const programHeader = `package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

const remoterunRunName = %q

type remoterunResult struct {
	RunName      string ` + "`json:\"runName\"`" + `
	Status       string ` + "`json:\"status\"`" + `
	Output       string ` + "`json:\"output,omitempty\"`" + `
	ErrorMessage string ` + "`json:\"errorMessage,omitempty\"`" + `
	DurationMs   int64  ` + "`json:\"durationMs\"`" + `
}

func remoterunArgs() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(%q)
	if err != nil {
		return nil, fmt.Errorf("read arguments: %%v", err)
	}
	args := map[string]json.RawMessage{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %%v", err)
	}
	if args == nil {
		args = map[string]json.RawMessage{}
	}
	return args, nil
}

func remoterunCheck(fn string, args map[string]json.RawMessage, required, known []string) error {
	for _, name := range required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("%%s() missing argument %%q", fn, name)
		}
	}
	var unexpected []string
	for name := range args {
		found := false
		for _, k := range known {
			if k == name {
				found = true
				break
			}
		}
		if !found {
			unexpected = append(unexpected, name)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return fmt.Errorf("%%s() got unexpected argument(s): %%s", fn, strings.Join(unexpected, ", "))
	}
	return nil
}

func remoterunDecode(args map[string]json.RawMessage, name string, dst interface{}) error {
	raw, ok := args[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("argument %%q: %%v", name, err)
	}
	return nil
}

func remoterunWrite(res remoterunResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	tmp := %q + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, %q)
}

func main() {
	remoterunStart := time.Now()
	remoterunRes := remoterunResult{RunName: remoterunRunName, Status: "ERROR"}
	defer func() {
		if r := recover(); r != nil {
			remoterunRes.Status = "ERROR"
			remoterunRes.Output = ""
			remoterunRes.ErrorMessage = fmt.Sprintf("panic: %%v", r)
		}
		remoterunRes.DurationMs = time.Since(remoterunStart).Milliseconds()
		if err := remoterunWrite(remoterunRes); err != nil {
			fmt.Fprintf(os.Stderr, "write result: %%v\n", err)
			os.Exit(1)
		}
	}()

	remoterunIn, err := remoterunArgs()
	if err != nil {
		remoterunRes.ErrorMessage = err.Error()
		return
	}
`

// GenerateProgram renders the main.go that binds args.json to the submitted
// function's parameters by name, calls it and records result.json.
func GenerateProgram(runName string, sub models.CodeSubmission) (string, error) {
	if sub.FunctionName == "main" || sub.FunctionName == "init" {
		return "", fmt.Errorf("function %s cannot be called by name", sub.FunctionName)
	}
	if sub.Generic {
		return "", fmt.Errorf("generic function %s cannot be called with keyword arguments", sub.FunctionName)
	}

	var required, known []string
	for i, p := range sub.Params {
		if p.Name == "" || p.Name == "_" {
			return "", fmt.Errorf("parameter %d of %s has no name and cannot be bound to an argument", i+1, sub.FunctionName)
		}
		known = append(known, p.Name)
		if !p.Variadic {
			required = append(required, p.Name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, programHeader, runName, ArgsFile, ResultFile, ResultFile)

	fmt.Fprintf(&b, "\tif err := remoterunCheck(%q, remoterunIn, %s, %s); err != nil {\n", sub.FunctionName, stringSlice(required), stringSlice(known))
	b.WriteString("\t\tremoterunRes.ErrorMessage = err.Error()\n\t\treturn\n\t}\n")

	callArgs := make([]string, 0, len(sub.Params))
	for i, p := range sub.Params {
		v := fmt.Sprintf("remoterunP%d", i)
		typ := p.Type
		if p.Variadic {
			typ = "[]" + typ
		}
		fmt.Fprintf(&b, "\tvar %s %s\n", v, typ)
		fmt.Fprintf(&b, "\tif err := remoterunDecode(remoterunIn, %q, &%s); err != nil {\n", p.Name, v)
		b.WriteString("\t\tremoterunRes.ErrorMessage = err.Error()\n\t\treturn\n\t}\n")
		if p.Variadic {
			v += "..."
		}
		callArgs = append(callArgs, v)
	}
	call := fmt.Sprintf("%s(%s)", sub.FunctionName, strings.Join(callArgs, ", "))

	results := make([]string, len(sub.Results))
	for i := range sub.Results {
		results[i] = fmt.Sprintf("remoterunR%d", i)
	}
	values := results
	if sub.ReturnsError() {
		values = results[:len(results)-1]
	}

	if len(results) == 0 {
		fmt.Fprintf(&b, "\t%s\n", call)
	} else {
		fmt.Fprintf(&b, "\t%s := %s\n", strings.Join(results, ", "), call)
	}
	if sub.ReturnsError() {
		errVar := results[len(results)-1]
		fmt.Fprintf(&b, "\tif %s != nil {\n\t\tremoterunRes.ErrorMessage = %s.Error()\n\t\treturn\n\t}\n", errVar, errVar)
	}

	b.WriteString("\tremoterunRes.Status = \"SUCCESS\"\n")
	switch len(values) {
	case 0:
		b.WriteString("\tremoterunRes.Output = fmt.Sprint(nil)\n")
	case 1:
		fmt.Fprintf(&b, "\tremoterunRes.Output = fmt.Sprint(%s)\n", values[0])
	default:
		fmt.Fprintf(&b, "\tremoterunRes.Output = fmt.Sprint([]interface{}{%s})\n", strings.Join(values, ", "))
	}
	b.WriteString("}\n")
	return b.String(), nil
}

// BuildArtifacts returns every file staged for one run, keyed by file name
func BuildArtifacts(req *models.RunRequest, goBinary string) (map[string][]byte, error) {
	program, err := GenerateProgram(req.Identity.Name, req.Submission)
	if err != nil {
		return nil, err
	}

	args := req.Args
	if args == nil {
		args = map[string]interface{}{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}

	return map[string][]byte{
		ProgramFile:  []byte(program),
		FunctionFile: []byte(packageClause + "\n" + req.Submission.Source + "\n"),
		ArgsFile:     argsJSON,
		ScriptFile:   []byte(runScript(goBinary)),
	}, nil
}

// runScript compiles and runs the staged program, then records the exit code.
// exit_code appears last and marks the run as finished.
func runScript(goBinary string) string {
	if goBinary == "" {
		goBinary = "go"
	}
	return fmt.Sprintf(`#!/bin/sh
cd "$(dirname "$0")" || exit 1
%s run %s %s > %s 2> %s
echo $? > %s.tmp && mv %s.tmp %s
`, shellEscape(goBinary), ProgramFile, FunctionFile, StdoutFile, StderrFile, ExitCodeFile, ExitCodeFile, ExitCodeFile)
}

func stringSlice(values []string) string {
	if len(values) == 0 {
		return "nil"
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return "[]string{" + strings.Join(quoted, ", ") + "}"
}
