package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "psinterop v%s\n", Version)
			fmt.Fprintln(out, "CUDA/OpenGL interop buffer bridge")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
		},
	}
}
