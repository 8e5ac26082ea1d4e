package commands

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xupit3r/psinterop/internal/cudart"
	"github.com/xupit3r/psinterop/internal/gpu"
	"github.com/xupit3r/psinterop/internal/logging"
	"github.com/xupit3r/psinterop/internal/system"
)

func (a *app) newDeviceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Show device information",
		Long: `Display the compute device interop copies run on, the CUDA runtime
version if one is present and the scratch pool used for strided sources.`,
		RunE: a.runDevice,
	}
}

func (a *app) runDevice(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	var dev gpu.Device
	if a.cfg.Emulator.Enabled {
		dev = gpu.NewCPUDevice()
	} else {
		d, err := gpu.GetDevice(gpu.DeviceTypeGPU)
		if err != nil {
			fmt.Fprintln(out, failStyle.Render("✗ Device Error: ")+err.Error())
			return err
		}
		dev = d
	}
	defer func() {
		if err := dev.Free(); err != nil {
			logging.WithFields(logrus.Fields{"device": dev.Name()}).
				Warnf("failed to free device: %v", err)
		}
	}()

	fmt.Fprintln(out, titleStyle.Render("psinterop device information"))
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%s Device: %s\n", okStyle.Render("✓"), dev.Name())
	fmt.Fprintf(out, "   Type: %s\n", dev.Type())
	fmt.Fprintf(out, "   Platform: %s\n\n", system.Platform())

	if rt, err := cudart.Load(); err == nil {
		if v, st := rt.RuntimeVersion(); st == cudart.Success {
			fmt.Fprintf(out, "CUDA runtime: %s\n", cudart.FormatVersion(v))
		}
	} else {
		fmt.Fprintf(out, "CUDA runtime: %s\n", dimStyle.Render(err.Error()))
	}

	if dev.Type() == gpu.DeviceTypeGPU {
		used, total := dev.MemoryUsage()
		if total > 0 {
			fmt.Fprintf(out, "GPU Memory:\n")
			fmt.Fprintf(out, "   Used: %s / %s (%.1f%%)\n", system.FormatBytes(used),
				system.FormatBytes(total), float64(used)/float64(total)*100)
			fmt.Fprintf(out, "   Free: %s\n", system.FormatBytes(total-used))
		}
	}

	pool := a.cfg.ScratchPoolBytes()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Host Memory:")
	if mem, err := system.GetHostMemory(); err == nil {
		fmt.Fprintf(out, "   Total: %s\n", system.FormatBytes(mem.TotalBytes))
		fmt.Fprintf(out, "   Available: %s\n", system.FormatBytes(mem.AvailableBytes))
		if a.cfg.Emulator.Enabled {
			pool = system.ClampScratchPool(pool, mem)
		}
	} else {
		fmt.Fprintf(out, "   %s\n", dimStyle.Render(err.Error()))
	}
	fmt.Fprintf(out, "   CPUs: %d\n\n", runtime.NumCPU())

	if pool > 0 {
		fmt.Fprintf(out, "Scratch pool: up to %s\n", system.FormatBytes(pool))
	} else {
		fmt.Fprintln(out, "Scratch pool: unbounded")
	}
	return nil
}
