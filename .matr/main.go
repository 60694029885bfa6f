// +build matr

package main

import (
	"context"
	"os"

	"github.com/matr-builder/matr/matr"
)

func main() {
	// Create new Matr instance
	m := matr.New()

	//  Build will build the calendar-adapter binary
	m.Handle(&matr.Task{
		Name:    "build",
		Summary: "Build will build the calendar-adapter binary",
		Doc:     `Build will build the calendar-adapter binary`,
		Handler: Build,
	})

	//  Lint run linters against codebase
	m.Handle(&matr.Task{
		Name:    "lint",
		Summary: "Lint run linters against codebase",
		Doc:     `Lint run linters against codebase`,
		Handler: Lint,
	})

	//  Test runs the test suite, optionally limited to the given packages
	m.Handle(&matr.Task{
		Name:    "test",
		Summary: "Test runs the test suite, optionally limited to the given packages",
		Doc:     `Test runs the test suite, optionally limited to the given packages`,
		Handler: Test,
	})

	//  Run will run the server, passing any args through to it
	m.Handle(&matr.Task{
		Name:    "run",
		Summary: "Run will run the server, passing any args through to it",
		Doc:     `Run will run the server, passing any args through to it`,
		Handler: Run,
	})

	//  Import runs a one-off import of an ICS feed into the configured calendar
	m.Handle(&matr.Task{
		Name:    "import",
		Summary: "Import runs a one-off import of an ICS feed into the configured calendar",
		Doc:     `Import runs a one-off import of an ICS feed into the configured calendar`,
		Handler: Import,
	})

	// Run Matr
	if err := m.Run(context.Background(), os.Args[1:]...); err != nil {
		os.Stderr.WriteString("ERROR: " + err.Error() + "\n")
	}
}
