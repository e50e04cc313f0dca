package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fmueller/transkribera/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cli.NewRootCmd(), os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run executes root and maps the outcome to the process exit status.
func run(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	if args == nil {
		// cobra falls back to os.Args for nil.
		args = []string{}
	}
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	fmt.Fprintln(stderr, "Error:", err)
	if isUsageError(err) {
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", helpHintTarget(root, args))
	}
	return 1
}

var usageErrorPatterns = []string{
	"unknown command",
	"unknown flag",
	"unknown shorthand flag",
	"accepts ",
	"requires at least",
	"requires at most",
	"requires between",
	"required flag",
	"missing required",
	"invalid argument",
}

func isUsageError(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	for _, pattern := range usageErrorPatterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}

// helpHintTarget names the subcommand the user was invoking, falling back to
// the root.
func helpHintTarget(root *cobra.Command, args []string) string {
	if root == nil {
		return "transkribera"
	}
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return root.CommandPath()
	}

	if found, _, err := root.Find(args); err == nil && found != nil {
		return found.CommandPath()
	}
	return root.CommandPath()
}
