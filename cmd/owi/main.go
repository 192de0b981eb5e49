// Command owi is a WebAssembly decode/link/interpret toolchain: `run` a
// module's exported function, drive a reference-suite `script` file, or
// explore one symbolically with `sym`. Layout follows wazero's own
// cmd/wazero — a flat package main split across a handful of files, one
// per subcommand — rebuilt on cobra per this repo's CLI stack.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
