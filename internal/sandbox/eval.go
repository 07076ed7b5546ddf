package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/scanner"
	"go/token"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/jkaninda/mlinzi/internal/command"
	"github.com/jkaninda/mlinzi/internal/storage"
	"github.com/jkaninda/mlinzi/internal/transport"
)

// envImportPath is the package snippets import to reach the bot.
const envImportPath = "mlinzi"

// preludeImports are available to snippets without an import clause.
const preludeImports = `import (
	"fmt"
	"os"
	"strings"
	"time"

	"mlinzi"
)`

// Env is the namespace exposed to snippets as package "mlinzi".
type Env struct {
	Client   transport.Client
	Commands *command.Registry
	Store    storage.Store

	// Chat and Message identify the message that invoked the snippet.
	Chat    int64
	Message int64
}

// Evaluate runs code in a fresh interpreter. Everything the snippet prints
// is captured. A snippet error is reported in the Result under the error
// banner; ErrSandboxInternal and context errors are returned.
func (s *Sandbox) Evaluate(ctx context.Context, code string, env *Env) (*Result, error) {
	if env == nil {
		env = &Env{}
	}
	out := &lockedBuffer{}

	start := time.Now()
	value, err := s.eval(ctx, code, env, out)
	elapsed := time.Since(start)

	result := &Result{Input: code, Elapsed: elapsed}

	var rerr *RuntimeError
	switch {
	case errors.As(err, &rerr):
		result.Prefix = errorBanner
		if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
			out.WriteString("\n")
		}
		out.WriteString(rerr.Trace())
	case err != nil:
		if errors.Is(err, ErrSandboxInternal) {
			s.logger.Error("snippet evaluation failed inside the sandbox",
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	case out.Len() == 0 && value != "":
		out.WriteString(value)
	}

	result.Body = codeBlock(strings.TrimSuffix(out.String(), "\n")) + "\n\n"
	return result, nil
}

// eval runs code and returns the printed form of its final value.
func (s *Sandbox) eval(ctx context.Context, code string, env *Env, out *lockedBuffer) (string, error) {
	stderr := &lockedBuffer{}
	i := interp.New(interp.Options{
		Stdout: out,
		Stderr: stderr,
	})
	if err := i.Use(stdlib.Symbols); err != nil {
		return "", fmt.Errorf("%w: loading stdlib symbols: %v", ErrSandboxInternal, err)
	}
	if err := i.Use(env.exports(ctx, out)); err != nil {
		return "", fmt.Errorf("%w: loading bot symbols: %v", ErrSandboxInternal, err)
	}
	if !declaresImports(code) {
		if _, err := i.Eval(preludeImports); err != nil {
			return "", fmt.Errorf("%w: importing prelude: %v", ErrSandboxInternal, err)
		}
	}

	src := code
	v, err := i.EvalWithContext(ctx, src)
	if opensWithDeclaration(code) && isDeclarationParseError(err) {
		// Statements after a leading declaration only parse in a function
		// body. A leading empty statement makes the interpreter wrap the
		// snippet in main.
		retry := ";" + code
		if rv, rerr := i.EvalWithContext(ctx, retry); !isParseError(rerr) {
			src, v, err = retry, rv, rerr
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return "", ctxErr
		}
		offset := sourceOffset(src) + len(src) - len(code)
		return "", classify(err, stderr.String(), out, offset)
	}
	forwardStderr(stderr.String(), out)
	return printValue(v), nil
}

// classify maps an interpreter error to RuntimeError or ErrSandboxInternal.
// Non-frame stderr output is forwarded to out so prints are not lost.
// offset is the wrapper's column offset on the snippet's first line.
func classify(err error, stderr string, out *lockedBuffer, offset int) error {
	forwardStderr(stderr, out)

	var p interp.Panic
	if errors.As(err, &p) {
		return reduce("panic: "+fmt.Sprint(p.Value), inSnippet(parseFrames(stderr), offset), err)
	}

	var frames []Frame
	var list scanner.ErrorList
	if errors.As(err, &list) {
		for _, e := range list {
			frames = append(frames, Frame{
				File:    e.Pos.Filename,
				Line:    e.Pos.Line,
				Column:  e.Pos.Column,
				Message: e.Msg,
			})
		}
	} else {
		frames = parseFrames(err.Error())
	}
	return reduce("", inSnippet(frames, offset), err)
}

// forwardStderr copies everything but interpreter frame lines to out.
func forwardStderr(stderr string, out *lockedBuffer) {
	if stderr == "" {
		return
	}
	for _, line := range strings.SplitAfter(stderr, "\n") {
		if line == "" || isFrameLine(line) {
			continue
		}
		out.WriteString(line)
	}
}

// declaresImports reports whether code brings its own package or import
// clause, in which case the prelude would clash with it.
func declaresImports(code string) bool {
	trimmed := strings.TrimSpace(code)
	return strings.HasPrefix(trimmed, "package ") || strings.HasPrefix(trimmed, "import")
}

// Wrappers the interpreter puts around evaluated source before parsing it.
const (
	declWrapper = "package main;"
	mainWrapper = "package main; func main() {"
)

// sourceOffset returns the number of columns the interpreter's wrapper adds
// in front of the first line of src.
func sourceOffset(src string) int {
	switch firstToken(src) {
	case token.PACKAGE:
		return 0
	case token.CONST, token.IMPORT, token.TYPE, token.VAR:
		return len(declWrapper)
	case token.FUNC:
		// A func that is not a declaration is retried inside main.
		if parses(declWrapper+src) || !parses(mainWrapper+src+"\n}") {
			return len(declWrapper)
		}
		return len(mainWrapper)
	default:
		return len(mainWrapper)
	}
}

func firstToken(src string) token.Token {
	fset := token.NewFileSet()
	var s scanner.Scanner
	s.Init(fset.AddFile("", fset.Base(), len(src)), []byte(src), nil, 0)
	_, tok, _ := s.Scan()
	return tok
}

func parses(src string) bool {
	_, err := parser.ParseFile(token.NewFileSet(), "", src, parser.DeclarationErrors)
	return err == nil
}

// opensWithDeclaration reports whether the interpreter parses code as a
// file of declarations.
func opensWithDeclaration(code string) bool {
	switch firstToken(code) {
	case token.CONST, token.TYPE, token.VAR:
		return true
	}
	return false
}

func isParseError(err error) bool {
	var list scanner.ErrorList
	return errors.As(err, &list)
}

// isDeclarationParseError reports a statement found where the parser
// expected another top-level declaration.
func isDeclarationParseError(err error) bool {
	var list scanner.ErrorList
	if !errors.As(err, &list) || len(list) == 0 {
		return false
	}
	return strings.HasPrefix(list[0].Msg, "expected declaration")
}

// interpPkgPath is the package of the interpreter's own node types.
var interpPkgPath = reflect.TypeOf(interp.Panic{}).PkgPath()

// printValue renders the last expression's value. Statements, declarations
// and function values produce nothing.
func printValue(v reflect.Value) string {
	// Declarations come back as a pointer to an interface slot.
	for v.IsValid() && (v.Kind() == reflect.Interface ||
		(v.Kind() == reflect.Pointer && v.Type().Elem().Kind() == reflect.Interface)) {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.Kind() == reflect.Func || isInterpreterType(v.Type()) {
		return ""
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan:
		if v.IsNil() {
			return "<nil>"
		}
	}
	if !v.CanInterface() {
		return ""
	}
	return fmt.Sprint(v.Interface())
}

func isInterpreterType(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.PkgPath() == interpPkgPath
}

// exports builds the symbol table for package "mlinzi".
func (e *Env) exports(ctx context.Context, out *lockedBuffer) interp.Exports {
	send := func(text string) (transport.Message, error) {
		if e.Client == nil {
			return transport.Message{}, fmt.Errorf("no chat client available")
		}
		return e.Client.SendMessage(ctx, e.Chat, text)
	}
	printFn := func(a ...any) { fmt.Fprint(out, a...) }
	printlnFn := func(a ...any) { fmt.Fprintln(out, a...) }
	printfFn := func(format string, a ...any) { fmt.Fprintf(out, format, a...) }
	contextFn := func() context.Context { return ctx }

	return interp.Exports{
		envImportPath + "/" + envImportPath: {
			"Client":   reflect.ValueOf(&e.Client).Elem(),
			"Commands": reflect.ValueOf(&e.Commands).Elem(),
			"Store":    reflect.ValueOf(&e.Store).Elem(),
			"Chat":     reflect.ValueOf(&e.Chat).Elem(),
			"Message":  reflect.ValueOf(&e.Message).Elem(),
			"Send":     reflect.ValueOf(send),
			"Print":    reflect.ValueOf(printFn),
			"Println":  reflect.ValueOf(printlnFn),
			"Printf":   reflect.ValueOf(printfFn),
			"Context":  reflect.ValueOf(contextFn),
		},
	}
}

// lockedBuffer is a bytes.Buffer safe for snippets that print from
// several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) WriteString(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.WriteString(s)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}
