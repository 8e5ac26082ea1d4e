package commands

import (
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xupit3r/psinterop/internal/devarray"
	"github.com/xupit3r/psinterop/internal/gpu"
	"github.com/xupit3r/psinterop/internal/logging"
	"github.com/xupit3r/psinterop/internal/render"
	"github.com/xupit3r/psinterop/internal/system"
)

type pushOptions struct {
	key      string
	rows     int
	cols     int
	layout   string
	protocol string
	repeat   int
}

func (a *app) newPushCommand() *cobra.Command {
	opts := pushOptions{}

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push a generated device array into an attribute buffer",
		Long: `Create a rows x cols float32 attribute buffer, push a generated device
array into it through the interop bridge and read the buffer back to verify
the copy.

--layout selects how the source is laid out in device memory:
  contiguous  C-ordered, copied without staging
  transposed  a transposed view, gathered into scratch memory first
  strided     every other column of a wider array

--protocol selects how the source describes itself: cai (CUDA array
interface) or dlpack.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPush(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.key, "key", "positions", "registry key for the attribute buffer")
	flags.IntVar(&opts.rows, "rows", 4, "number of rows")
	flags.IntVar(&opts.cols, "cols", 4, "number of columns")
	flags.StringVar(&opts.layout, "layout", "contiguous", "source layout: contiguous, transposed or strided")
	flags.StringVar(&opts.protocol, "protocol", "cai", "exchange protocol: cai or dlpack")
	flags.IntVar(&opts.repeat, "repeat", 1, "number of pushes into the same buffer")
	return cmd
}

func (a *app) runPush(cmd *cobra.Command, opts pushOptions) error {
	if opts.rows <= 0 || opts.cols <= 0 {
		return fmt.Errorf("rows and cols must be positive, got %dx%d", opts.rows, opts.cols)
	}
	if opts.repeat <= 0 {
		return fmt.Errorf("repeat must be positive, got %d", opts.repeat)
	}

	s, err := openSession(a.cfg)
	if err != nil {
		return err
	}
	defer s.closeOrWarn()

	if err := s.bridge.CheckAvailability(); err != nil {
		return err
	}
	adapter, err := s.bridge.Adapter()
	if err != nil {
		return err
	}

	shape := []int{opts.rows, opts.cols}
	want := generate(opts.rows, opts.cols)

	src, free, err := buildSource(adapter.Device(), opts, want)
	if err != nil {
		return err
	}
	defer free()

	var obj any = src
	switch opts.protocol {
	case "cai":
	case "dlpack":
		obj = src.AsDLPack()
	default:
		return fmt.Errorf("unknown protocol %q (want cai or dlpack)", opts.protocol)
	}

	buf, err := s.backend.NewAttributeBuffer(int64(4 * opts.rows * opts.cols))
	if err != nil {
		return err
	}
	defer releaseBuffer(s, opts.key, buf)

	for i := 0; i < opts.repeat; i++ {
		if err := s.bridge.SetBufferFromArray(opts.key, buf, obj, shape, devarray.Float32); err != nil {
			return err
		}
	}

	data, err := s.backend.ReadBuffer(buf)
	if err != nil {
		return err
	}
	got := devarray.BytesFloat32(data)
	if !slices.Equal(got, want) {
		return fmt.Errorf("read back %v, want %v", got, want)
	}

	reg, err := s.bridge.Registry()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("push"))
	fmt.Fprintf(out, "  backend   %s\n", s.backend.Name())
	fmt.Fprintf(out, "  source    %dx%d float32, %s via %s\n", opts.rows, opts.cols, opts.layout, opts.protocol)
	fmt.Fprintf(out, "  copied    %s into %q (%d push(es), %d mapped buffer(s))\n",
		system.FormatBytes(int64(len(data))), opts.key, opts.repeat, reg.Len())
	fmt.Fprintln(out, okStyle.Render("  verified  buffer contents match the source"))
	return nil
}

// releaseBuffer drops the registration under key, then the GL buffer it
// wraps. Failures are logged since the push result is already decided.
func releaseBuffer(s *session, key string, buf render.AttributeBuffer) {
	if err := s.bridge.Remove(key); err != nil {
		logging.WithFields(logrus.Fields{"key": key}).
			Warnf("failed to unregister mapped buffer: %v", err)
	}
	if err := s.backend.DeleteBuffer(buf); err != nil {
		logging.WithFields(logrus.Fields{"buffer": buf.NativeBufferID()}).
			Warnf("failed to delete attribute buffer: %v", err)
	}
}

// generate returns the C-ordered values every layout must read back as
func generate(rows, cols int) []float32 {
	out := make([]float32, rows*cols)
	for i := range out {
		out[i] = float32(i) + 0.25
	}
	return out
}

// buildSource lays want out on dev according to opts.layout and returns a
// rows x cols view of it
func buildSource(dev gpu.Device, opts pushOptions, want []float32) (*devarray.Array, func(), error) {
	rows, cols := opts.rows, opts.cols

	switch opts.layout {
	case "contiguous":
		arr, err := devarray.FromFloat32(dev, []int{rows, cols}, want)
		if err != nil {
			return nil, nil, err
		}
		return arr, func() { arr.Free() }, nil

	case "transposed":
		base := make([]float32, rows*cols)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				base[j*rows+i] = want[i*cols+j]
			}
		}
		arr, err := devarray.FromFloat32(dev, []int{cols, rows}, base)
		if err != nil {
			return nil, nil, err
		}
		return arr.Transpose(), func() { arr.Free() }, nil

	case "strided":
		base := make([]float32, rows*cols*2)
		for i := range base {
			base[i] = -1
		}
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				base[i*2*cols+2*j] = want[i*cols+j]
			}
		}
		arr, err := devarray.FromFloat32(dev, []int{rows, 2 * cols}, base)
		if err != nil {
			return nil, nil, err
		}
		view, err := arr.Step(1, 2)
		if err != nil {
			arr.Free()
			return nil, nil, err
		}
		return view, func() { arr.Free() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown layout %q (want contiguous, transposed or strided)", opts.layout)
	}
}
