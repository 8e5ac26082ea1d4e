package cudart

import "fmt"

// Status mirrors cudaError_t. Zero is success.
type Status int

const (
	Success                      Status = 0
	ErrorInvalidValue            Status = 1
	ErrorMemoryAllocation        Status = 2
	ErrorInitializationError     Status = 3
	ErrorInsufficientDriver      Status = 35
	ErrorNoDevice                Status = 100
	ErrorMapBufferObjectFailed   Status = 205
	ErrorUnmapBufferObjectFailed Status = 206
	ErrorAlreadyMapped           Status = 208
	ErrorNotMapped               Status = 211
	ErrorNotMappedAsPointer      Status = 213
	ErrorInvalidGraphicsContext  Status = 219
	ErrorInvalidResourceHandle   Status = 400
	ErrorUnknown                 Status = 999
)

var statusNames = map[Status][2]string{
	Success:                      {"cudaSuccess", "no error"},
	ErrorInvalidValue:            {"cudaErrorInvalidValue", "invalid argument"},
	ErrorMemoryAllocation:        {"cudaErrorMemoryAllocation", "out of memory"},
	ErrorInitializationError:     {"cudaErrorInitializationError", "initialization error"},
	ErrorInsufficientDriver:      {"cudaErrorInsufficientDriver", "CUDA driver version is insufficient for CUDA runtime version"},
	ErrorNoDevice:                {"cudaErrorNoDevice", "no CUDA-capable device is detected"},
	ErrorMapBufferObjectFailed:   {"cudaErrorMapBufferObjectFailed", "mapping of buffer object failed"},
	ErrorUnmapBufferObjectFailed: {"cudaErrorUnmapBufferObjectFailed", "unmapping of buffer object failed"},
	ErrorAlreadyMapped:           {"cudaErrorAlreadyMapped", "resource already mapped"},
	ErrorNotMapped:               {"cudaErrorNotMapped", "resource not mapped"},
	ErrorNotMappedAsPointer:      {"cudaErrorNotMappedAsPointer", "resource not mapped as pointer"},
	ErrorInvalidGraphicsContext:  {"cudaErrorInvalidGraphicsContext", "invalid OpenGL or DirectX context"},
	ErrorInvalidResourceHandle:   {"cudaErrorInvalidResourceHandle", "invalid resource handle"},
	ErrorUnknown:                 {"cudaErrorUnknown", "unknown error"},
}

// StatusName returns the symbolic name the CUDA runtime uses for s
func StatusName(s Status) string {
	if n, ok := statusNames[s]; ok {
		return n[0]
	}
	return "cudaErrorUnknown"
}

// StatusString returns the human-readable description of s
func StatusString(s Status) string {
	if n, ok := statusNames[s]; ok {
		return n[1]
	}
	return "unrecognized error code"
}

// Error is a non-success status annotated with the runtime's name and
// message for it
type Error struct {
	Status  Status
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s(%d): %s", e.Name, int(e.Status), e.Message)
}

// Check converts a status returned by rt into an error, using the runtime's
// own name and message lookup. It returns nil for Success.
func Check(rt Runtime, s Status) error {
	if s == Success {
		return nil
	}
	return &Error{
		Status:  s,
		Name:    rt.ErrorName(s),
		Message: rt.ErrorString(s),
	}
}

// FormatVersion renders a CUDA runtime version number (1000*major + 10*minor)
// as "major.minor"
func FormatVersion(v int) string {
	return fmt.Sprintf("%d.%d", v/1000, (v%1000)/10)
}
