package services

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ljbeal/MCP-remotemanager/models"
)

const sourceFileName = "function.go"

// packageClause is prepended to submitted source so it parses as a file
const packageClause = "package main\n"

// HostProbe checks that a host can take a run before anything is staged
type HostProbe interface {
	Probe(ctx context.Context, hostname string) error
}

// CommandProbe opens a transient connection and runs a no-op command
type CommandProbe struct {
	connector   *Connector
	timeout     time.Duration
	maxAttempts int
}

func NewCommandProbe(connector *Connector, timeout time.Duration) *CommandProbe {
	return &CommandProbe{connector: connector, timeout: timeout, maxAttempts: 1}
}

func (p *CommandProbe) Probe(ctx context.Context, hostname string) error {
	conn, err := p.connector.Open(hostname)
	if err != nil {
		return err
	}
	_, err = conn.Cmd(ctx, "pwd", nil, p.timeout, p.maxAttempts)
	return err
}

type Validator struct {
	probe HostProbe
	log   zerolog.Logger
}

func NewValidator(probe HostProbe, logger zerolog.Logger) *Validator {
	return &Validator{probe: probe, log: logger}
}

// ValidateSource parses source and extracts the entry function. Imports and extra
// declarations are accepted; the entry function is the first top-level func without a receiver.
func (v *Validator) ValidateSource(source string) (models.CodeSubmission, error) {
	sub, err := ParseSubmission(source)
	if err != nil {
		v.log.Error().Err(err).Msg("unable to parse function source code")
		return models.CodeSubmission{}, err
	}
	v.log.Info().Str("function", sub.FunctionName).Msg("function source code is valid")
	return sub, nil
}

// ValidateHost probes hostname once; the probe's connection is not reused
func (v *Validator) ValidateHost(ctx context.Context, hostname string) error {
	if strings.TrimSpace(hostname) == "" {
		err := &ConnectivityError{Host: hostname, Err: errors.New("hostname is required")}
		v.log.Error().Err(err).Msg("invalid hostname")
		return err
	}

	if err := v.probe.Probe(ctx, hostname); err != nil {
		var connErr *ConnectivityError
		if !errors.As(err, &connErr) {
			err = &ConnectivityError{Host: hostname, Err: err}
		}
		v.log.Error().Str("host", hostname).Err(err).Msg("invalid hostname or unable to connect")
		return err
	}
	v.log.Info().Str("host", hostname).Msg("hostname is valid")
	return nil
}

// ParseSubmission parses source with go/parser and describes its entry function
func ParseSubmission(source string) (models.CodeSubmission, error) {
	text := packageClause + source
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, sourceFileName, text, parser.SkipObjectResolution)
	if err != nil {
		return models.CodeSubmission{}, &SyntaxValidationError{Message: parserMessage(err)}
	}

	fn := entryFunc(file)
	if fn == nil {
		return models.CodeSubmission{}, &SyntaxValidationError{Message: "no function definition found"}
	}

	sub := models.CodeSubmission{
		Source:       source,
		FunctionName: fn.Name.Name,
	}
	if fn.Type.TypeParams != nil && len(fn.Type.TypeParams.List) > 0 {
		sub.Generic = true
	}

	typeText := func(expr ast.Expr) string {
		return text[fset.Position(expr.Pos()).Offset:fset.Position(expr.End()).Offset]
	}
	for _, field := range fn.Type.Params.List {
		variadic := false
		typ := field.Type
		if ell, ok := typ.(*ast.Ellipsis); ok {
			variadic = true
			typ = ell.Elt
		}
		if len(field.Names) == 0 {
			sub.Params = append(sub.Params, models.Param{Type: typeText(typ), Variadic: variadic})
			continue
		}
		for _, name := range field.Names {
			sub.Params = append(sub.Params, models.Param{Name: name.Name, Type: typeText(typ), Variadic: variadic})
		}
	}
	if fn.Type.Results != nil {
		for _, field := range fn.Type.Results.List {
			n := len(field.Names)
			if n == 0 {
				n = 1
			}
			for i := 0; i < n; i++ {
				sub.Results = append(sub.Results, typeText(field.Type))
			}
		}
	}
	return sub, nil
}

func entryFunc(file *ast.File) *ast.FuncDecl {
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if ok && fn.Recv == nil {
			return fn
		}
	}
	return nil
}

// parserMessage renders parse errors with line numbers relative to the caller's source
func parserMessage(err error) string {
	var list scanner.ErrorList
	if !errors.As(err, &list) {
		return err.Error()
	}
	msgs := make([]string, 0, len(list))
	for _, e := range list {
		line := e.Pos.Line - 1
		if line < 1 {
			msgs = append(msgs, e.Msg)
			continue
		}
		msgs = append(msgs, fmt.Sprintf("line %d:%d: %s", line, e.Pos.Column, e.Msg))
	}
	return strings.Join(msgs, "; ")
}
