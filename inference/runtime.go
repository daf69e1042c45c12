package inference

import (
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var runtimeMu sync.Mutex

// SharedLibPath returns the default location of the onnxruntime shared
// library for the current platform, relative to the working directory.
//
// Returns:
//   - string: The library path, or "" if the platform has no known default.
func SharedLibPath() string {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "./third_party/onnxruntime.dll"
		}
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
	return ""
}

// InitializeRuntime loads the onnxruntime shared library and initializes the
// process-wide environment. It is a no-op when the environment is already up.
//
// Arguments:
//   - libPath: Path to the shared library. Empty selects SharedLibPath().
//
// Returns:
//   - error: An error if the library is missing or fails to initialize.
func InitializeRuntime(libPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	if libPath == "" {
		libPath = SharedLibPath()
	}
	if libPath == "" {
		return errors.Errorf("no onnxruntime library known for %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

// ShutdownRuntime tears down the process-wide environment.
func ShutdownRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}
