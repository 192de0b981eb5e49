package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wasmkit/owi/internal/interpret"
	"github.com/wasmkit/owi/internal/script"
	"github.com/wasmkit/owi/internal/values"
)

var scriptCmd = &cobra.Command{
	Use:   "script <suite.json>",
	Short: "Run a reference-suite script file (module/register/invoke/assert_*)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := doScript(args[0], os.Stdout)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("one or more script directives failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scriptCmd)
}

// doScript runs every directive in the JSON script file at path and
// prints a pass/fail line per directive, returning whether every
// directive passed.
func doScript(path string, stdout io.Writer) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	directives, err := script.ParseJSON(data)
	if err != nil {
		return false, err
	}

	it := interpret.New[values.Value](values.Algebra{})
	runner := script.NewRunner(it)
	outcomes := runner.Run(directives)

	allPassed := true
	for i, o := range outcomes {
		if o.Err == nil {
			fmt.Fprintln(stdout, color.GreenString("ok   [%d] %T", i, o.Directive))
			continue
		}
		allPassed = false
		fmt.Fprintln(stdout, color.RedString("FAIL [%d] %T: %s", i, o.Directive, o.Err))
	}
	return allPassed, nil
}
