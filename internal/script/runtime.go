// Package script compiles and runs the server scripts embedded in pages.
//
// A server script is an ES module whose default export takes the request and
// returns the page data, or a Redirect. Modules are converted to CommonJS
// with esbuild and executed by goja.
package script

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"

	pgerrors "github.com/conneroisu/pagelet/internal/errors"
	"github.com/conneroisu/pagelet/internal/logging"
)

// HostModule is the specifier scripts import host helpers from:
//
//	import { Redirect } from "pagelet"
const HostModule = "pagelet"

const prelude = `
var Redirect = class Redirect {
	constructor(url, status) {
		this.url = typeof url === "string" ? url : "";
		this.status = typeof status === "number" ? status : 0;
	}
};
function redirect(url, status) {
	return new Redirect(url, status);
}
`

var preludeProgram = goja.MustCompile("pagelet:prelude", prelude, true)

// Options configures a Runtime.
type Options struct {
	// Timeout bounds one script call. Zero disables the limit.
	Timeout time.Duration
	// PoolSize is how many idle goja runtimes an Entry keeps.
	PoolSize int
	Logger   logging.Logger
}

// Runtime compiles script sources into Entries.
type Runtime struct {
	opts Options
	log  logging.Logger
}

// NewRuntime creates a Runtime.
func NewRuntime(opts Options) *Runtime {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 4
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Runtime{opts: opts, log: log.WithComponent("script")}
}

// Compile converts source to a program and instantiates it once to check
// that it has a callable default export.
func (r *Runtime) Compile(name, source string) (*Entry, error) {
	code, err := transform(name, source)
	if err != nil {
		return nil, err
	}

	program, err := goja.Compile(name, code, false)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", name, err)
	}

	e := &Entry{
		name:    name,
		program: program,
		rt:      r,
		idle:    make(chan *instance, r.opts.PoolSize),
	}

	inst, err := e.instantiate()
	if err != nil {
		return nil, err
	}
	e.release(inst)

	return e, nil
}

// transform rewrites an ES module into CommonJS that goja can run.
func transform(name, source string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Loader:     api.LoaderJS,
		Format:     api.FormatCommonJS,
		Target:     api.ES2017,
		Sourcefile: name,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, m := range result.Errors {
			if m.Location != nil {
				msgs = append(msgs, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
				continue
			}
			msgs = append(msgs, m.Text)
		}
		return "", errors.New(strings.Join(msgs, "; "))
	}
	return string(result.Code), nil
}

// Entry is a compiled server script. It is safe for concurrent use; each
// call borrows its own goja runtime.
type Entry struct {
	name    string
	program *goja.Program
	rt      *Runtime
	idle    chan *instance
}

type instance struct {
	vm       *goja.Runtime
	fn       goja.Callable
	redirect *goja.Object
}

// Name returns the name the script was compiled under.
func (e *Entry) Name() string {
	return e.name
}

func (e *Entry) instantiate() (*instance, error) {
	vm := goja.New()

	if _, err := vm.RunProgram(preludeProgram); err != nil {
		return nil, fmt.Errorf("installing prelude: %w", err)
	}
	redirectCtor := vm.Get("Redirect").ToObject(vm)

	host := vm.NewObject()
	_ = host.Set("Redirect", redirectCtor)
	_ = host.Set("redirect", vm.Get("redirect"))

	module := vm.NewObject()
	exports := vm.NewObject()
	_ = module.Set("exports", exports)
	_ = vm.Set("module", module)
	_ = vm.Set("exports", exports)
	_ = vm.Set("require", func(call goja.FunctionCall) goja.Value {
		spec := call.Argument(0).String()
		if spec == HostModule {
			return host
		}
		panic(vm.NewGoError(fmt.Errorf("cannot find module %q", spec)))
	})
	_ = vm.Set("console", e.console(vm))

	if _, err := vm.RunProgram(e.program); err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", e.name, err)
	}

	fn, ok := defaultExport(vm, module)
	if !ok {
		return nil, pgerrors.NewLoadError(pgerrors.ErrCodeNoDefaultExport, "module has no default export function", nil).
			WithLocation(e.name, 0, 0)
	}

	return &instance{vm: vm, fn: fn, redirect: redirectCtor}, nil
}

func defaultExport(vm *goja.Runtime, module *goja.Object) (goja.Callable, bool) {
	exports := module.Get("exports")
	if exports == nil || goja.IsUndefined(exports) || goja.IsNull(exports) {
		return nil, false
	}
	if fn, ok := goja.AssertFunction(exports.ToObject(vm).Get("default")); ok {
		return fn, true
	}
	// module.exports = function (req) { ... }
	return goja.AssertFunction(exports)
}

func (e *Entry) console(vm *goja.Runtime) *goja.Object {
	log := e.rt.log.With("script", e.name)
	format := func(call goja.FunctionCall) string {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		return strings.Join(parts, " ")
	}

	c := vm.NewObject()
	_ = c.Set("log", func(call goja.FunctionCall) goja.Value {
		log.Info(context.Background(), format(call))
		return goja.Undefined()
	})
	_ = c.Set("info", c.Get("log"))
	_ = c.Set("debug", func(call goja.FunctionCall) goja.Value {
		log.Debug(context.Background(), format(call))
		return goja.Undefined()
	})
	_ = c.Set("warn", func(call goja.FunctionCall) goja.Value {
		log.Warn(context.Background(), nil, format(call))
		return goja.Undefined()
	})
	_ = c.Set("error", func(call goja.FunctionCall) goja.Value {
		log.Error(context.Background(), nil, format(call))
		return goja.Undefined()
	})
	return c
}

func (e *Entry) acquire() (*instance, error) {
	select {
	case inst := <-e.idle:
		return inst, nil
	default:
		return e.instantiate()
	}
}

func (e *Entry) release(inst *instance) {
	select {
	case e.idle <- inst:
	default:
	}
}

// Run calls the script's default export with req.
func (e *Entry) Run(ctx context.Context, req *http.Request) (Result, error) {
	inst, err := e.acquire()
	if err != nil {
		return nil, pgerrors.NewExecError(pgerrors.ErrCodeScriptFailed, pgerrors.MsgScript, err).
			WithLocation(e.name, 0, 0)
	}

	var timer *time.Timer
	if d := e.rt.opts.Timeout; d > 0 {
		timer = time.AfterFunc(d, func() { inst.vm.Interrupt(context.DeadlineExceeded) })
	}
	stop := context.AfterFunc(ctx, func() { inst.vm.Interrupt(ctx.Err()) })

	value, err := inst.fn(goja.Undefined(), inst.vm.ToValue(requestObject(req)))

	// A runtime that was, or may still be, interrupted is not reused.
	reusable := stop()
	if timer != nil && !timer.Stop() {
		reusable = false
	}

	if err != nil {
		return nil, e.execError(err)
	}

	res, err := e.result(inst, value)
	if err != nil {
		return nil, err
	}
	if reusable {
		e.release(inst)
	}
	return res, nil
}

func (e *Entry) execError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return pgerrors.NewExecError(pgerrors.ErrCodeScriptTimeout, pgerrors.MsgScript, err).
			WithLocation(e.name, 0, 0)
	}
	return pgerrors.NewExecError(pgerrors.ErrCodeScriptFailed, pgerrors.MsgScript, err).
		WithLocation(e.name, 0, 0)
}

func (e *Entry) result(inst *instance, value goja.Value) (Result, error) {
	if p, ok := value.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			value = p.Result()
		case goja.PromiseStateRejected:
			return nil, e.execError(fmt.Errorf("promise rejected: %s", p.Result().String()))
		default:
			return nil, e.execError(errors.New("promise still pending after call returned"))
		}
	}

	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return Rendered{Data: EmptyData()}, nil
	}

	if inst.vm.InstanceOf(value, inst.redirect) {
		obj := value.ToObject(inst.vm)
		status := 0
		if s := obj.Get("status"); s != nil {
			status = int(s.ToInteger())
		}
		return Redirect{URL: obj.Get("url").String(), Status: NormalizeStatus(status)}, nil
	}

	return Rendered{Data: value.Export()}, nil
}
