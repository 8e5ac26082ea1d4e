package commands

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/xupit3r/psinterop/internal/config"
	"github.com/xupit3r/psinterop/internal/gpu"
	"github.com/xupit3r/psinterop/internal/interop"
	"github.com/xupit3r/psinterop/internal/logging"
	"github.com/xupit3r/psinterop/internal/render"
	"github.com/xupit3r/psinterop/internal/system"
)

// session is one backend plus the bridge feeding it
type session struct {
	backend  render.BufferBackend
	bridge   *interop.Bridge
	emulated bool
	poolSize int64
	closers  []func() error
}

// openSession builds the backend and bridge selected by cfg. With the
// emulator enabled everything runs in host memory; otherwise a GLFW context
// and the native CUDA runtime are used.
func openSession(cfg *config.Config) (*session, error) {
	s := &session{poolSize: cfg.ScratchPoolBytes()}

	var opts interop.Options
	if cfg.Emulator.Enabled {
		// Emulated device memory is host memory
		if mem, err := system.GetHostMemory(); err == nil {
			s.poolSize = system.ClampScratchPool(s.poolSize, mem)
		} else {
			logging.Debugf("host memory unknown, scratch pool left at %s: %v",
				system.FormatBytes(s.poolSize), err)
		}

		dev := gpu.NewCPUDevice()
		backend := render.NewEmulated(cfg.Emulator.BackendName, dev)
		opts, _ = interop.Emulated(backend, s.poolSize)
		s.backend = backend
		s.emulated = true
		s.closers = append(s.closers, backend.Close, dev.Free)
	} else {
		backend, err := render.NewGLFW()
		if err != nil {
			return nil, err
		}
		opts = interop.Options{Backend: backend}
		s.backend = backend
		s.closers = append(s.closers, backend.Close)
	}

	opts.AllowedBackends = cfg.Interop.AllowedBackends
	opts.MinRuntimeVersion = cfg.Interop.MinCUDAVersion
	opts.ScratchPoolBytes = s.poolSize

	bridge, err := interop.New(opts)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}
	s.bridge = bridge

	logging.WithFields(logrus.Fields{
		"backend":  s.backend.Name(),
		"emulated": s.emulated,
		"pool":     system.FormatBytes(s.poolSize),
	}).Debug("session opened")
	return s, nil
}

// closeOrWarn closes s and logs what failed; used from defers that have
// no error to return into
func (s *session) closeOrWarn() {
	if err := s.Close(); err != nil {
		logging.WithFields(logrus.Fields{"backend": s.backend.Name()}).
			Warnf("failed to close session: %v", err)
	}
}

// Close unregisters every mapped buffer before tearing the backend down
func (s *session) Close() error {
	var errs []error
	if s.bridge != nil {
		errs = append(errs, s.bridge.Close())
	}
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
