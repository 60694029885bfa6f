//go:build matr
// +build matr

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matr-builder/matr/matr"
	"github.com/pkg/errors"
)

// Build will build the calendar-adapter binary
func Build(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	var platform = fs.String("p", "linux", "platform")
	var arch = fs.String("a", "amd64", "architecture")
	fs.Parse(args)

	startTime := time.Now()
	fmt.Println("Building: calendar-adapter")
	cmd := matr.Sh(`GOOS=%s GOARCH=%s CGO_ENABLED=0 go build -ldflags '-extldflags "-static"' -o build/calendar-adapter ./cmd/server`, *platform, *arch)
	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, "[BUILD ERROR]")
	}
	fmt.Println("Finished Building: calendar-adapter", time.Since(startTime))

	return nil
}

// Lint run linters against codebase
func Lint(ctx context.Context, args []string) error {
	fmt.Println("Running GolangCI-Lint...")
	if err := matr.Sh(`go run github.com/golangci/golangci-lint/cmd/golangci-lint run ./...`).Run(); err != nil {
		return errors.Wrap(err, "[GO-LINT ERRORS]")
	}

	return nil
}

// Test runs the test suite, optionally limited to the given packages
func Test(ctx context.Context, args []string) error {
	pkgs := "./..."
	if len(args) > 0 {
		pkgs = strings.Join(args, " ")
	}
	if err := matr.Sh(`go test -race -count=1 %s`, pkgs).Run(); err != nil {
		return errors.Wrap(err, "[TEST ERRORS]")
	}

	return nil
}

// Run will run the server, passing any args through to it
func Run(ctx context.Context, args []string) error {
	if err := matr.Sh(`go run ./cmd/server ` + strings.Join(args, " ")).Run(); err != nil {
		return err
	}

	return nil
}

// Import runs a one-off import of an ICS feed into the configured calendar
func Import(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: matr import <ics-url>")
		return errors.New("[IMPORT ERROR] missing feed url")
	}
	if err := matr.Sh(`go run ./cmd/server import %s`, args[0]).Run(); err != nil {
		return errors.Wrap(err, "[IMPORT ERROR]")
	}

	return nil
}
