package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/assign"
	"github.com/wasmkit/owi/internal/cache"
	"github.com/wasmkit/owi/internal/interpret"
	"github.com/wasmkit/owi/internal/link"
	"github.com/wasmkit/owi/internal/logging"
	"github.com/wasmkit/owi/internal/rewrite"
	"github.com/wasmkit/owi/internal/tracing"
	"github.com/wasmkit/owi/internal/validate"
	"github.com/wasmkit/owi/internal/values"
	"github.com/wasmkit/owi/internal/wasm"
	"github.com/wasmkit/owi/internal/wasm/binary"
)

var (
	runInvoke   string
	runCacheDir string
)

var runCmd = &cobra.Command{
	Use:   "run <module.wasm> [args...]",
	Short: "Decode, link, and invoke one exported function of a module",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doRun(args[0], runInvoke, args[1:], os.Stdout)
	},
}

func init() {
	runCmd.Flags().StringVar(&runInvoke, "invoke", "", "exported function to call (default: the module's start function only)")
	runCmd.Flags().StringVar(&runCacheDir, "cache", "", "directory for the SQLite compiled-module cache")
	rootCmd.AddCommand(runCmd)
}

// loadAndLink runs the full decode/assign/rewrite/validate/link pipeline
// over the file at path against reg, tracing each stage when --profiling
// is set and consulting the compiled-module cache when --cache is set.
func loadAndLink(path string, reg link.Registry) (*link.Instance, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var c *cache.Store
	if runCacheDir != "" {
		c, err = cache.Open(runCacheDir)
		if err != nil {
			return nil, err
		}
		defer c.Close()
	}

	m, err := decodeValidate(raw, c)
	if err != nil {
		return nil, err
	}

	_, end := tracing.Span(context.Background(), tracing.StageLink)
	defer end()
	return link.Link(m, reg, interpret.New[values.Value](values.Algebra{}))
}

func decodeValidate(raw []byte, c *cache.Store) (*wasm.Module, error) {
	if c != nil {
		if m, ok, err := c.Lookup(raw); err != nil {
			return nil, err
		} else if ok {
			logDebug("served from cache")
			// The cached bytes carry neither the Imported* projections nor
			// resolved block types, so assign and rewrite run again here.
			if m, err = assign.Run(m); err != nil {
				return nil, fmt.Errorf("assign: %w", err)
			}
			if m, err = rewrite.Run(m); err != nil {
				return nil, fmt.Errorf("rewrite: %w", err)
			}
			return m, nil
		}
	}

	_, endDecode := tracing.Span(context.Background(), tracing.StageDecode)
	m, err := binary.DecodeModule(raw)
	endDecode()
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	warnIfIncompatible(os.Stderr, m)

	_, endAssign := tracing.Span(context.Background(), tracing.StageAssign)
	m, err = assign.Run(m)
	endAssign()
	if err != nil {
		return nil, fmt.Errorf("assign: %w", err)
	}

	_, endRewrite := tracing.Span(context.Background(), tracing.StageRewrite)
	m, err = rewrite.Run(m)
	if err == nil && optimizeFlag {
		m = rewrite.FoldConstants(m)
	}
	endRewrite()
	if err != nil {
		return nil, fmt.Errorf("rewrite: %w", err)
	}

	_, endValidate := tracing.Span(context.Background(), tracing.StageTypecheck)
	err = validate.Run(m)
	endValidate()
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	if c != nil {
		if err := c.Store(raw, m); err != nil {
			logging.L().Warn("failed to store module in cache", zap.Error(err))
		}
	}
	return m, nil
}

func doRun(path, fn string, rawArgs []string, stdout io.Writer) error {
	inst, err := loadAndLink(path, link.Registry{})
	if err != nil {
		return err
	}

	if fn == "" {
		fmt.Fprintln(stdout, color.GreenString("linked ok"))
		return nil
	}

	exp, ok := inst.Exports[fn]
	if !ok || exp.Kind != api.ExternTypeFunc {
		return fmt.Errorf("no exported function %q", fn)
	}

	callArgs, err := parseArgs(rawArgs, exp.Func.Type.Params)
	if err != nil {
		return err
	}

	_, end := tracing.Span(context.Background(), tracing.StageInterpret)
	defer end()

	it := interpret.New[values.Value](values.Algebra{})
	results, err := it.Call(exp.Func, callArgs)
	if err != nil {
		var te *wasm.TrapError
		if errors.As(err, &te) {
			fmt.Fprintln(os.Stderr, color.RedString("trap: %s", te.Error()))
		} else {
			fmt.Fprintln(os.Stderr, color.RedString("error: %s", err.Error()))
		}
		return err
	}

	formatResults(stdout, results, exp.Func.Type.Results)
	return nil
}

func parseArgs(raw []string, params []api.ValueType) ([]uint64, error) {
	if len(raw) != len(params) {
		return nil, fmt.Errorf("%q expects %d argument(s), got %d", "invoke", len(params), len(raw))
	}
	out := make([]uint64, len(raw))
	for i, s := range raw {
		v, err := parseArg(s, params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseArg(s string, t api.ValueType) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		v, err := strconv.ParseInt(s, 10, 32)
		return api.EncodeI32(int32(v)), err
	case api.ValueTypeI64:
		v, err := strconv.ParseInt(s, 10, 64)
		return api.EncodeI64(v), err
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(s, 32)
		return api.EncodeF32(float32(v)), err
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(s, 64)
		return api.EncodeF64(v), err
	default:
		return 0, fmt.Errorf("unsupported argument type %s", api.ValueTypeName(t))
	}
}

func formatResults(stdout io.Writer, results []uint64, types []api.ValueType) {
	for i, v := range results {
		t := types[i]
		switch t {
		case api.ValueTypeI32:
			fmt.Fprintln(stdout, api.DecodeI32(v))
		case api.ValueTypeI64:
			fmt.Fprintln(stdout, api.DecodeI64(v))
		case api.ValueTypeF32:
			fmt.Fprintln(stdout, api.DecodeF32(v))
		case api.ValueTypeF64:
			fmt.Fprintln(stdout, api.DecodeF64(v))
		default:
			fmt.Fprintf(stdout, "%#x\n", v)
		}
	}
}
