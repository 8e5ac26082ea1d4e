package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xupit3r/psinterop/internal/interop"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7B68EE"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7FFF00"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// errCheckFailed is returned after a failing report has been printed
var errCheckFailed = errors.New("interop is not available")

func (a *app) newCheckCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that CUDA/OpenGL interop can run",
		Long: `Run the capability gate: the active rendering backend must be in the
allow-list and the CUDA runtime and device array support must load, at a
runtime version that satisfies interop.min_cuda_version.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(a.cfg)
			if err != nil {
				return err
			}
			defer s.closeOrWarn()

			report := s.bridge.Gate().Report()
			switch output {
			case "yaml":
				if err := writeYAMLReport(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			case "text":
				writeTextReport(cmd.OutOrStdout(), report)
			default:
				return fmt.Errorf("unknown output format %q (want text or yaml)", output)
			}

			if !report.OK() {
				return errCheckFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or yaml")
	return cmd
}

func writeYAMLReport(w io.Writer, r interop.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}

func writeTextReport(w io.Writer, r interop.Report) {
	mark := func(ok bool) string {
		if ok {
			return okStyle.Render("✓")
		}
		return failStyle.Render("✗")
	}

	fmt.Fprintln(w, titleStyle.Render("CUDA/OpenGL interop check"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s backend %s %s\n", mark(r.BackendAllowed), r.Backend,
		dimStyle.Render("(allowed: "+strings.Join(r.Allowed, ", ")+")"))

	for _, d := range r.Dependencies {
		detail := d.Version
		if d.Err != nil {
			detail = d.Err.Error()
		}
		if detail != "" {
			detail = dimStyle.Render("(" + detail + ")")
		}
		fmt.Fprintf(w, "%s %s %s\n", mark(d.Available && d.Err == nil), d.Name, detail)
	}

	fmt.Fprintln(w)
	if r.OK() {
		fmt.Fprintln(w, okStyle.Render("interop available"))
		return
	}
	for _, p := range r.Problems {
		fmt.Fprintln(w, failStyle.Render("• ")+p)
	}
}
