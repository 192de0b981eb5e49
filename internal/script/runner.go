package script

import (
	"errors"
	"fmt"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/assign"
	"github.com/wasmkit/owi/internal/link"
	"github.com/wasmkit/owi/internal/rewrite"
	"github.com/wasmkit/owi/internal/validate"
	"github.com/wasmkit/owi/internal/wasm"
	"github.com/wasmkit/owi/internal/wasm/binary"
)

// Runner executes a Directive sequence against the full pipeline (decode,
// assign, rewrite, validate, link) and an injected Engine. It is
// deliberately parametrised over link.Engine rather than any particular
// interpret.Algebra, so the same Runner drives a script file whether the
// caller wired it to internal/values (ordinary execution) or
// internal/symbolic (concolic exploration) — interpret.Interpreter[V]
// satisfies link.Engine for any V.
type Runner struct {
	Registry link.Registry
	Engine   link.Engine

	modules map[string]*link.Instance
	last    *link.Instance
}

// NewRunner builds a Runner driven by eng, with an empty import registry.
func NewRunner(eng link.Engine) *Runner {
	return &Runner{Registry: link.Registry{}, Engine: eng, modules: map[string]*link.Instance{}}
}

// Outcome pairs a Directive with the error it produced, nil meaning it
// passed (for an assert_* directive) or loaded/ran cleanly (for module,
// register, invoke).
type Outcome struct {
	Directive Directive
	Err       error
}

// Run executes every directive in order and reports one Outcome per
// directive. It does not stop at the first failure — spec.md §6 describes
// a sequential script, and the reference suite expects every directive in
// a file to be attempted and reported, not just the first that fails.
func (r *Runner) Run(directives []Directive) []Outcome {
	out := make([]Outcome, len(directives))
	for i, d := range directives {
		out[i] = Outcome{Directive: d, Err: r.exec(d)}
	}
	return out
}

func (r *Runner) exec(d Directive) error {
	switch v := d.(type) {
	case ModuleDirective:
		return r.module(v)
	case RegisterDirective:
		return r.register(v)
	case InvokeDirective:
		_, err := r.invoke(v)
		return err
	case AssertReturnDirective:
		return r.assertReturn(v)
	case AssertReturnNanDirective:
		return r.assertReturnNan(v)
	case AssertTrapDirective:
		return r.assertTrap(v)
	case AssertMalformedDirective:
		return r.assertMalformed(v)
	case AssertInvalidDirective:
		return r.assertInvalid(v)
	default:
		return fmt.Errorf("internal/script: unknown directive %T", d)
	}
}

// loadModule runs the decode/assign/rewrite/validate stages in sequence,
// stopping at the first failure — the same "nothing is retried, no stage
// catches another stage's error" discipline spec.md §7 requires of the
// pipeline at large.
func loadModule(b []byte) (*wasm.Module, error) {
	m, err := binary.DecodeModule(b)
	if err != nil {
		return nil, err
	}
	if m, err = assign.Run(m); err != nil {
		return nil, err
	}
	if m, err = rewrite.Run(m); err != nil {
		return nil, err
	}
	if err = validate.Run(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Runner) module(d ModuleDirective) error {
	m, err := loadModule(d.Binary)
	if err != nil {
		return fmt.Errorf("internal/script: module %q failed to load: %w", d.ID, err)
	}
	inst, err := link.Link(m, r.Registry, r.Engine)
	if err != nil {
		return fmt.Errorf("internal/script: module %q failed to link: %w", d.ID, err)
	}
	if d.ID != "" {
		r.modules[d.ID] = inst
	}
	r.last = inst
	return nil
}

func (r *Runner) resolve(id string) (*link.Instance, error) {
	if id == "" {
		if r.last == nil {
			return nil, errors.New("internal/script: no module loaded yet")
		}
		return r.last, nil
	}
	inst, ok := r.modules[id]
	if !ok {
		return nil, fmt.Errorf("internal/script: unknown module %q", id)
	}
	return inst, nil
}

func (r *Runner) register(d RegisterDirective) error {
	inst, err := r.resolve(d.ID)
	if err != nil {
		return err
	}
	link.RegisterInstance(r.Registry, d.ModuleName, inst)
	return nil
}

func (r *Runner) invoke(d InvokeDirective) ([]uint64, error) {
	inst, err := r.resolve(d.ID)
	if err != nil {
		return nil, err
	}
	exp, ok := inst.Exports[d.Name]
	if !ok || exp.Kind != api.ExternTypeFunc {
		return nil, fmt.Errorf("internal/script: unknown function export %q", d.Name)
	}
	return r.Engine.Call(exp.Func, d.Args)
}

func (r *Runner) assertReturn(d AssertReturnDirective) error {
	got, err := r.invoke(d.Invoke)
	if err != nil {
		return fmt.Errorf("internal/script: assert_return %q: %w", d.Invoke.Name, err)
	}
	if len(got) != len(d.Results) {
		return fmt.Errorf("internal/script: assert_return %q: got %d results, want %d", d.Invoke.Name, len(got), len(d.Results))
	}
	for i := range got {
		if got[i] != d.Results[i] {
			return fmt.Errorf("internal/script: assert_return %q: result %d = %#x, want %#x", d.Invoke.Name, i, got[i], d.Results[i])
		}
	}
	return nil
}

func (r *Runner) assertReturnNan(d AssertReturnNanDirective) error {
	got, err := r.invoke(d.Invoke)
	if err != nil {
		return fmt.Errorf("internal/script: assert_return_nan %q: %w", d.Invoke.Name, err)
	}
	if len(got) != 1 {
		return fmt.Errorf("internal/script: assert_return_nan %q: got %d results, want 1", d.Invoke.Name, len(got))
	}
	var ok bool
	switch d.Type {
	case ResultF32:
		bits := uint32(got[0])
		if d.Canonical {
			ok = isCanonicalNan32(bits)
		} else {
			ok = isArithmeticNan32(bits)
		}
	case ResultF64:
		if d.Canonical {
			ok = isCanonicalNan64(got[0])
		} else {
			ok = isArithmeticNan64(got[0])
		}
	}
	if !ok {
		return fmt.Errorf("internal/script: assert_return_nan %q: result %#x is not a %s NaN", d.Invoke.Name, got[0], nanKind(d.Canonical))
	}
	return nil
}

func nanKind(canonical bool) string {
	if canonical {
		return "canonical"
	}
	return "arithmetic"
}

func (r *Runner) assertTrap(d AssertTrapDirective) error {
	_, err := r.invoke(d.Invoke)
	if err == nil {
		return fmt.Errorf("internal/script: assert_trap %q: expected trap %q, call succeeded", d.Invoke.Name, d.Message)
	}
	var te *wasm.TrapError
	if !errors.As(err, &te) {
		return fmt.Errorf("internal/script: assert_trap %q: expected trap %q, got non-trap error: %w", d.Invoke.Name, d.Message, err)
	}
	return nil
}

func (r *Runner) assertMalformed(d AssertMalformedDirective) error {
	if _, err := binary.DecodeModule(d.Binary); err == nil {
		return fmt.Errorf("internal/script: assert_malformed %q: expected decode to fail, it succeeded", d.Message)
	}
	return nil
}

func (r *Runner) assertInvalid(d AssertInvalidDirective) error {
	m, err := binary.DecodeModule(d.Binary)
	if err != nil {
		return fmt.Errorf("internal/script: assert_invalid %q: module failed at decode, not validation: %w", d.Message, err)
	}
	if m, err = assign.Run(m); err == nil {
		if m, err = rewrite.Run(m); err == nil {
			err = validate.Run(m)
		}
	}
	if err == nil {
		return fmt.Errorf("internal/script: assert_invalid %q: expected validation to fail, it succeeded", d.Message)
	}
	return nil
}
