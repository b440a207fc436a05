package services

import (
	"encoding/json"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
	"testing"

	"github.com/ljbeal/MCP-remotemanager/models"
)

func mustParse(t *testing.T, source string) models.CodeSubmission {
	t.Helper()
	sub, err := ParseSubmission(source)
	if err != nil {
		t.Fatalf("parse submission: %v", err)
	}
	return sub
}

func TestGenerateProgramParses(t *testing.T) {
	sources := []string{
		"func add(a, b int) int { return a + b }",
		"func hello() {}",
		"func div(a, b float64) (float64, error) { return a / b, nil }",
		"func join(sep string, parts ...string) string { return sep }",
		"func pair() (int, string) { return 1, \"x\" }",
		"func check(m map[string]interface{}) error { return nil }",
	}
	for _, source := range sources {
		sub := mustParse(t, source)
		program, err := GenerateProgram("run_1", sub)
		if err != nil {
			t.Fatalf("%s: generate: %v", sub.FunctionName, err)
		}
		if _, err := parser.ParseFile(token.NewFileSet(), ProgramFile, program, 0); err != nil {
			t.Fatalf("%s: generated program does not parse: %v\n%s", sub.FunctionName, err, program)
		}
	}
}

func TestGenerateProgramBindsByName(t *testing.T) {
	program, err := GenerateProgram("run_1", mustParse(t, "func join(sep string, parts ...string) string { return sep }"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, want := range []string{
		`const remoterunRunName = "run_1"`,
		`remoterunCheck("join", remoterunIn, []string{"sep"}, []string{"sep", "parts"})`,
		`var remoterunP1 []string`,
		`remoterunR0 := join(remoterunP0, remoterunP1...)`,
		`remoterunRes.Output = fmt.Sprint(remoterunR0)`,
	} {
		if !strings.Contains(program, want) {
			t.Fatalf("program missing %q:\n%s", want, program)
		}
	}
}

func TestGenerateProgramArgumentMessages(t *testing.T) {
	program, err := GenerateProgram("run_1", mustParse(t, "func add(a, b int) int { return a + b }"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, want := range []string{
		`fmt.Errorf("%s() missing argument %q", fn, name)`,
		`fmt.Errorf("%s() got unexpected argument(s): %s", fn, strings.Join(unexpected, ", "))`,
	} {
		if !strings.Contains(program, want) {
			t.Fatalf("program missing %q:\n%s", want, program)
		}
	}
}

func TestGenerateProgramFormatArity(t *testing.T) {
	program, err := GenerateProgram("run_1", mustParse(t, "func div(a, b float64) (float64, error) { return a / b, nil }"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	file, err := parser.ParseFile(token.NewFileSet(), ProgramFile, program, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	checked := 0
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		pkg, ok := sel.X.(*ast.Ident)
		if !ok || pkg.Name != "fmt" {
			return true
		}
		formatAt := -1
		switch sel.Sel.Name {
		case "Errorf", "Sprintf":
			formatAt = 0
		case "Fprintf":
			formatAt = 1
		}
		if formatAt < 0 || len(call.Args) <= formatAt {
			return true
		}
		lit, ok := call.Args[formatAt].(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING {
			return true
		}
		format, err := strconv.Unquote(lit.Value)
		if err != nil {
			t.Fatalf("unquote %s: %v", lit.Value, err)
		}
		verbs := strings.Count(strings.ReplaceAll(format, "%%", ""), "%")
		if args := len(call.Args) - formatAt - 1; args != verbs {
			t.Fatalf("fmt.%s(%s) has %d verbs and %d arguments", sel.Sel.Name, lit.Value, verbs, args)
		}
		checked++
		return true
	})
	if checked == 0 {
		t.Fatalf("no format calls found in generated program")
	}
}

func TestGenerateProgramResults(t *testing.T) {
	cases := []struct {
		source string
		want   string
	}{
		{"func hello() {}", "remoterunRes.Output = fmt.Sprint(nil)"},
		{"func fail() error { return nil }", "remoterunRes.Output = fmt.Sprint(nil)"},
		{"func div(a, b float64) (float64, error) { return a / b, nil }", "remoterunRes.Output = fmt.Sprint(remoterunR0)"},
		{"func pair() (int, string) { return 1, \"x\" }", "fmt.Sprint([]interface{}{remoterunR0, remoterunR1})"},
	}
	for _, tc := range cases {
		sub := mustParse(t, tc.source)
		program, err := GenerateProgram("r", sub)
		if err != nil {
			t.Fatalf("%s: generate: %v", sub.FunctionName, err)
		}
		if !strings.Contains(program, tc.want) {
			t.Fatalf("%s: program missing %q", sub.FunctionName, tc.want)
		}
		if sub.ReturnsError() != strings.Contains(program, "remoterunRes.ErrorMessage = remoterunR") {
			t.Fatalf("%s: error result handling mismatch", sub.FunctionName)
		}
	}
}

func TestGenerateProgramRejects(t *testing.T) {
	for _, source := range []string{
		"func first[T any](xs []T) T { return xs[0] }",
		"func ignore(int, string) {}",
		"func skip(_ int) {}",
		"func main() {}",
	} {
		if _, err := GenerateProgram("r", mustParse(t, source)); err == nil {
			t.Fatalf("%s: expected error", source)
		}
	}
}

func TestBuildArtifacts(t *testing.T) {
	req := &models.RunRequest{
		Submission: mustParse(t, "func add(a, b int) int { return a + b }"),
		Identity:   models.RunIdentity{Name: "add_box_20240101-000000"},
		Args:       map[string]interface{}{"a": 2, "b": 3},
	}
	artifacts, err := BuildArtifacts(req, "/usr/local/go/bin/go")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, name := range []string{ProgramFile, FunctionFile, ArgsFile, ScriptFile} {
		if len(artifacts[name]) == 0 {
			t.Fatalf("missing artifact %s", name)
		}
	}
	if len(artifacts) != 4 {
		t.Fatalf("unexpected artifacts: %d", len(artifacts))
	}

	if !strings.HasPrefix(string(artifacts[FunctionFile]), "package main\n") {
		t.Fatalf("function.go must start with the package clause")
	}
	if _, err := parser.ParseFile(token.NewFileSet(), FunctionFile, artifacts[FunctionFile], 0); err != nil {
		t.Fatalf("function.go does not parse: %v", err)
	}

	var args map[string]int
	if err := json.Unmarshal(artifacts[ArgsFile], &args); err != nil {
		t.Fatalf("decode args: %v", err)
	}
	if args["a"] != 2 || args["b"] != 3 {
		t.Fatalf("unexpected args: %+v", args)
	}

	script := string(artifacts[ScriptFile])
	if !strings.Contains(script, "'/usr/local/go/bin/go' run main.go function.go > stdout.log 2> stderr.log") {
		t.Fatalf("unexpected script:\n%s", script)
	}
	if !strings.Contains(script, "echo $? > exit_code.tmp && mv exit_code.tmp exit_code") {
		t.Fatalf("exit code must be recorded last:\n%s", script)
	}
}

func TestBuildArtifactsNilArgs(t *testing.T) {
	req := &models.RunRequest{
		Submission: mustParse(t, "func hello() {}"),
		Identity:   models.RunIdentity{Name: "hello"},
	}
	artifacts, err := BuildArtifacts(req, "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if string(artifacts[ArgsFile]) != "{}" {
		t.Fatalf("unexpected args: %s", artifacts[ArgsFile])
	}
	if !strings.Contains(string(artifacts[ScriptFile]), "'go' run ") {
		t.Fatalf("default go binary expected")
	}
}
