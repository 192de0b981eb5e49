package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/interpret"
	"github.com/wasmkit/owi/internal/link"
	"github.com/wasmkit/owi/internal/symbolic"
	"github.com/wasmkit/owi/internal/symtui"
	"github.com/wasmkit/owi/internal/tracing"
)

var (
	symInvoke      string
	symInteractive bool
)

var symCmd = &cobra.Command{
	Use:   "sym <module.wasm> [witness-args...]",
	Short: "Symbolically execute an exported function along every reachable path",
	Long: `sym links the module the same way run does (also registering the
symbolic.i32/assume/assert host imports), then calls the chosen export
through internal/symbolic's Algebra instead of internal/values: every
parameter becomes a symbolic variable seeded with witness-args as its
concrete lane, and every conditional branch forks into one continuation
per side the Solver can't prove unreachable — with the bundled NopSolver,
that means both sides of every symbolic branch. sym reports one path per
terminal continuation, each with its own oriented path condition.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doSym(args[0], symInvoke, args[1:], symInteractive, os.Stdout)
	},
}

func init() {
	symCmd.Flags().StringVar(&symInvoke, "invoke", "", "exported function to call symbolically")
	symCmd.Flags().BoolVar(&symInteractive, "interactive", false, "show the explored path in a live bubbletea view")
	rootCmd.AddCommand(symCmd)
}

func doSym(path, fn string, rawArgs []string, interactive bool, stdout io.Writer) error {
	reg := link.Registry{}
	symbolic.RegisterHostModule(reg)
	inst, err := loadAndLink(path, reg)
	if err != nil {
		return err
	}
	if fn == "" {
		return fmt.Errorf("sym requires --invoke")
	}

	exp, ok := inst.Exports[fn]
	if !ok || exp.Kind != api.ExternTypeFunc {
		return fmt.Errorf("no exported function %q", fn)
	}

	witness, err := parseArgs(rawArgs, exp.Func.Type.Params)
	if err != nil {
		return err
	}

	alg := symbolic.New(symbolic.NopSolver{})
	args := make([]symbolic.Value, len(witness))
	for i, w := range witness {
		args[i] = symbolic.NewVar(fmt.Sprintf("arg%d", i), w)
	}

	_, end := tracing.Span(context.Background(), tracing.StageInterpret)
	defer end()

	it := interpret.New[symbolic.Value](alg)
	outcomes := it.CallAllV(exp.Func, args)

	paths := make([]symtui.Path, len(outcomes))
	for i, o := range outcomes {
		status := symtui.StatusCompleted
		detail := ""
		if o.Err != nil {
			status = symtui.StatusTrapped
			detail = o.Err.Error()
		}
		salg, _ := o.Alg.(*symbolic.Algebra)
		var constraints []*symbolic.Expr
		if salg != nil {
			constraints = append([]*symbolic.Expr(nil), salg.Path.Constraints...)
		}
		paths[i] = symtui.Path{
			ID:          i,
			ParentID:    -1,
			Constraints: constraints,
			Status:      status,
			Detail:      detail,
		}
	}

	printSymSummary(stdout, paths, outcomes)

	if interactive {
		return runSymInteractive(fn, paths)
	}

	for _, o := range outcomes {
		if o.Err != nil {
			return o.Err
		}
	}
	return nil
}

func printSymSummary(stdout io.Writer, paths []symtui.Path, outcomes []interpret.Outcome[symbolic.Value]) {
	for i, p := range paths {
		fmt.Fprintln(stdout, color.CyanString("path %d condition (%d constraints):", p.ID, len(p.Constraints)))
		for _, c := range p.Constraints {
			fmt.Fprintln(stdout, "  "+c.String())
		}
		switch p.Status {
		case symtui.StatusTrapped:
			fmt.Fprintln(stdout, color.RedString("trapped: %s", p.Detail))
		default:
			for j, r := range outcomes[i].Results {
				fmt.Fprintln(stdout, color.GreenString("result %d: %s (witness %s)", j, valueExprString(r), strconv.FormatUint(r.Num, 10)))
			}
		}
	}
}

func valueExprString(v symbolic.Value) string {
	if v.Expr == nil {
		return "<const>"
	}
	return v.Expr.String()
}

func runSymInteractive(target string, paths []symtui.Path) error {
	prog := tea.NewProgram(symtui.New(target), tea.WithAltScreen())
	go func() {
		for _, p := range paths {
			prog.Send(symtui.PathEvent{Path: p})
		}
	}()
	_, err := prog.Run()
	return err
}
