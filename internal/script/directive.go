// Package script runs the reference test-suite script format of spec.md
// §6: a sequence of directives against decoded Wasm binaries. Text-format
// ".wast" sources are consumed via an external parser per spec.md §6 ("Text
// format... consumed via an external parser"); this package takes the
// already-parsed directive values and the already-encoded module bytes
// each directive carries, the same separation spec.md draws between the
// text grammar and this repo's binary-format pipeline.
package script

// Directive is one script-level action. The concrete types below are the
// reference suite's directive vocabulary (spec.md §6), plus the two
// float-NaN-shape assertions the reference suite also relies on
// (SPEC_FULL.md §5).
type Directive interface{ isDirective() }

// ModuleDirective loads and links a module, optionally binding it to ID so
// later directives (register, invoke, assert_*) can address it by name
// instead of implicitly meaning "the most recently loaded module".
type ModuleDirective struct {
	ID     string
	Binary []byte
}

// RegisterDirective exposes a previously loaded module's exports as an
// import source named ModuleName, per spec.md §6 "register name $id". ID
// selects which loaded module; empty means the most recently loaded one.
type RegisterDirective struct {
	ModuleName string
	ID         string
}

// InvokeDirective calls the exported function Name of the module named by
// ID (empty meaning the most recently loaded one) with Args, already
// encoded as operand-stack lanes.
type InvokeDirective struct {
	ID   string
	Name string
	Args []uint64
}

// AssertReturnDirective invokes and compares every result lane exactly
// against Results.
type AssertReturnDirective struct {
	Invoke  InvokeDirective
	Results []uint64
}

// AssertReturnNanDirective invokes and checks that the single float result
// is a NaN of the given shape. Canonical means exactly the canonical quiet
// NaN bit pattern; non-canonical ("arithmetic" in the reference suite's
// terms) means any NaN with its quiet bit set.
type AssertReturnNanDirective struct {
	Invoke    InvokeDirective
	Type      ResultType
	Canonical bool
}

// ResultType is the float width an AssertReturnNanDirective's result is
// checked against.
type ResultType int

const (
	ResultF32 ResultType = iota
	ResultF64
)

// AssertTrapDirective invokes and requires the call to trap. Message is
// the reference suite's human-readable expectation; it is recorded for
// diagnostics only; spec.md §7 trap identity is the typed TrapKind enum,
// not this string, so it is not compared against the error text at all.
type AssertTrapDirective struct {
	Invoke  InvokeDirective
	Message string
}

// AssertMalformedDirective requires Binary to fail at the binary-decode
// stage specifically (spec.md §7's "static error" channel, decode phase):
// the reference suite's "malformed" category is a structural encoding
// violation, caught before any identifier or type is resolved.
type AssertMalformedDirective struct {
	Binary  []byte
	Message string
}

// AssertInvalidDirective requires Binary to decode successfully but fail
// during assign/rewrite/validate: the reference suite's "invalid"
// category is a semantic error (unknown identifier, type mismatch) that
// only a fully decoded module can even express.
type AssertInvalidDirective struct {
	Binary  []byte
	Message string
}

func (ModuleDirective) isDirective()          {}
func (RegisterDirective) isDirective()        {}
func (InvokeDirective) isDirective()          {}
func (AssertReturnDirective) isDirective()    {}
func (AssertReturnNanDirective) isDirective() {}
func (AssertTrapDirective) isDirective()      {}
func (AssertMalformedDirective) isDirective() {}
func (AssertInvalidDirective) isDirective()   {}
