package script

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// wireDirective is the JSON-serializable shape of one Directive, the form
// `owi script` reads from disk. Module/NaN binaries travel as hex
// strings since JSON has no byte-string type. This is the boundary
// SPEC_FULL.md draws for this repo's CLI: the S-expression ".wast" text
// grammar itself stays "consumed via an external parser" (spec.md §6);
// that external front-end is expected to emit this JSON array, not raw
// text, for this package to run.
type wireDirective struct {
	Kind       string   `json:"kind"`
	ID         string   `json:"id,omitempty"`
	Binary     string   `json:"binary,omitempty"`
	ModuleName string   `json:"module_name,omitempty"`
	Name       string   `json:"name,omitempty"`
	Args       []uint64 `json:"args,omitempty"`
	Results    []uint64 `json:"results,omitempty"`
	Type       string   `json:"type,omitempty"`
	Canonical  bool     `json:"canonical,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// ParseJSON decodes a JSON array of wire directives into the Directive
// values Run expects.
func ParseJSON(data []byte) ([]Directive, error) {
	var wire []wireDirective
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("internal/script: decode directives: %w", err)
	}

	out := make([]Directive, 0, len(wire))
	for i, w := range wire {
		d, err := w.toDirective()
		if err != nil {
			return nil, fmt.Errorf("internal/script: directive %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func (w wireDirective) invoke() InvokeDirective {
	return InvokeDirective{ID: w.ID, Name: w.Name, Args: w.Args}
}

func (w wireDirective) binary() ([]byte, error) {
	if w.Binary == "" {
		return nil, nil
	}
	return hex.DecodeString(w.Binary)
}

func (w wireDirective) toDirective() (Directive, error) {
	bin, err := w.binary()
	if err != nil {
		return nil, fmt.Errorf("decode hex binary: %w", err)
	}

	switch w.Kind {
	case "module":
		return ModuleDirective{ID: w.ID, Binary: bin}, nil
	case "register":
		return RegisterDirective{ModuleName: w.ModuleName, ID: w.ID}, nil
	case "invoke":
		return w.invoke(), nil
	case "assert_return":
		return AssertReturnDirective{Invoke: w.invoke(), Results: w.Results}, nil
	case "assert_return_canonical_nan", "assert_return_arithmetic_nan":
		rt, err := parseResultType(w.Type)
		if err != nil {
			return nil, err
		}
		return AssertReturnNanDirective{
			Invoke:    w.invoke(),
			Type:      rt,
			Canonical: w.Kind == "assert_return_canonical_nan",
		}, nil
	case "assert_trap":
		return AssertTrapDirective{Invoke: w.invoke(), Message: w.Message}, nil
	case "assert_malformed":
		return AssertMalformedDirective{Binary: bin, Message: w.Message}, nil
	case "assert_invalid":
		return AssertInvalidDirective{Binary: bin, Message: w.Message}, nil
	default:
		return nil, fmt.Errorf("unknown directive kind %q", w.Kind)
	}
}

func parseResultType(s string) (ResultType, error) {
	switch s {
	case "f32":
		return ResultF32, nil
	case "f64":
		return ResultF64, nil
	default:
		return 0, fmt.Errorf("unknown nan result type %q", s)
	}
}
