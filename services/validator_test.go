package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type fakeProbe struct {
	err   error
	calls []string
}

func (p *fakeProbe) Probe(ctx context.Context, hostname string) error {
	p.calls = append(p.calls, hostname)
	return p.err
}

func TestParseSubmissionEntryFunction(t *testing.T) {
	sub, err := ParseSubmission("func add(a, b int) int { return a + b }")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sub.FunctionName != "add" {
		t.Fatalf("unexpected function: %q", sub.FunctionName)
	}
	if len(sub.Params) != 2 || sub.Params[0].Name != "a" || sub.Params[1].Name != "b" {
		t.Fatalf("unexpected params: %+v", sub.Params)
	}
	for _, p := range sub.Params {
		if p.Type != "int" || p.Variadic {
			t.Fatalf("unexpected param: %+v", p)
		}
	}
	if len(sub.Results) != 1 || sub.Results[0] != "int" {
		t.Fatalf("unexpected results: %+v", sub.Results)
	}
	if sub.ReturnsError() {
		t.Fatalf("add does not return an error")
	}
}

func TestParseSubmissionSkipsMethodsAndKeepsHelpers(t *testing.T) {
	source := `import "strings"

type point struct{ x, y int }

func (p point) sum() int { return p.x + p.y }

func shout(words ...string) (string, error) {
	return strings.ToUpper(strings.Join(words, " ")), nil
}

func helper() {}
`
	sub, err := ParseSubmission(source)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sub.FunctionName != "shout" {
		t.Fatalf("expected first receiverless func, got %q", sub.FunctionName)
	}
	if len(sub.Params) != 1 || !sub.Params[0].Variadic || sub.Params[0].Type != "string" {
		t.Fatalf("unexpected params: %+v", sub.Params)
	}
	if !sub.ReturnsError() {
		t.Fatalf("expected trailing error result")
	}
	if sub.Source != source {
		t.Fatalf("source must be kept verbatim")
	}
}

func TestParseSubmissionFlags(t *testing.T) {
	sub, err := ParseSubmission("func first[T any](xs []T) T { return xs[0] }")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !sub.Generic {
		t.Fatalf("expected generic function")
	}

	sub, err = ParseSubmission("func ignore(int, string) {}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(sub.Params) != 2 || sub.Params[0].Name != "" || sub.Params[1].Type != "string" {
		t.Fatalf("unexpected params: %+v", sub.Params)
	}

	sub, err = ParseSubmission("func pair() (q, r int) { return 1, 2 }")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(sub.Results) != 2 {
		t.Fatalf("named results should expand, got %+v", sub.Results)
	}
}

func TestParseSubmissionSyntaxErrors(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   string
	}{
		{name: "unbalanced", source: "func broken(a int) int {\n\treturn a +\n", want: "line "},
		{name: "no function", source: "var x = 1", want: "no function definition found"},
		{name: "empty", source: "", want: "no function definition found"},
		{name: "other language", source: "def add(a, b):\n    return a + b", want: "line 1:"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSubmission(tc.source)
			var syntaxErr *SyntaxValidationError
			if !errors.As(err, &syntaxErr) {
				t.Fatalf("expected SyntaxValidationError, got %v", err)
			}
			if !strings.HasPrefix(err.Error(), "Unable to parse function source code. Please ensure that it is valid Go: ") {
				t.Fatalf("unexpected message: %q", err)
			}
			if !strings.Contains(syntaxErr.Message, tc.want) {
				t.Fatalf("message %q does not contain %q", syntaxErr.Message, tc.want)
			}
		})
	}
}

func TestValidateHost(t *testing.T) {
	probe := &fakeProbe{}
	v := NewValidator(probe, zerolog.Nop())

	if err := v.ValidateHost(context.Background(), "user@example"); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(probe.calls) != 1 || probe.calls[0] != "user@example" {
		t.Fatalf("unexpected probe calls: %+v", probe.calls)
	}

	err := v.ValidateHost(context.Background(), "  ")
	var connErr *ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectivityError for blank host, got %v", err)
	}
	if len(probe.calls) != 1 {
		t.Fatalf("blank host must not be probed")
	}
}

func TestValidateHostWrapsProbeFailure(t *testing.T) {
	probe := &fakeProbe{err: errors.New("connection refused")}
	v := NewValidator(probe, zerolog.Nop())

	err := v.ValidateHost(context.Background(), "nowhere")
	var connErr *ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectivityError, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "Invalid hostname or unable to connect: ") {
		t.Fatalf("unexpected message: %q", err)
	}
	if ErrorKind(err) != KindConnectivity {
		t.Fatalf("unexpected kind: %s", ErrorKind(err))
	}
}
