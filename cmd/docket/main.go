// Command docket tracks project documents through their lifecycle and
// expands @kind:value references in prompt templates.
package main

import (
	"context"
	"fmt"
	"os"

	dErrors "docket/pkg/domain-errors"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(dErrors.ExitCode(err))
	}
}
