package inference

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Provider names an ONNX Runtime execution provider.
type Provider string

const (
	// ProviderCPU runs on the default CPU provider.
	ProviderCPU Provider = "cpu"
	// ProviderCUDA uses NVIDIA CUDA.
	ProviderCUDA Provider = "cuda"
	// ProviderCoreML uses Apple CoreML.
	ProviderCoreML Provider = "coreml"
	// ProviderOpenVINO uses Intel OpenVINO.
	ProviderOpenVINO Provider = "openvino"
)

// ParseProvider normalizes a provider name. An empty name selects the CPU.
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return ProviderCPU, nil
	case ProviderCPU, ProviderCUDA, ProviderCoreML, ProviderOpenVINO:
		return p, nil
	default:
		return "", errors.Errorf("unknown execution provider %q", name)
	}
}

// applyProvider appends the execution provider to the session options. The
// CPU provider needs nothing appended.
//
// Arguments:
//   - options: The session options to configure.
//   - provider: The provider to enable.
//   - deviceID: The accelerator index for CUDA and OpenVINO.
//
// Returns:
//   - error: An error if the provider is unknown or unavailable in the loaded runtime.
func applyProvider(options *ort.SessionOptions, provider Provider, deviceID int) error {
	switch provider {
	case "", ProviderCPU:
		return nil

	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "error creating CUDA options")
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(deviceID)}); err != nil {
			return errors.Wrap(err, "error setting CUDA options")
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}

	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}

	case ProviderOpenVINO:
		// See:
		// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
		config := map[string]string{
			"device_type": "CPU",
			"device_id":   strconv.Itoa(deviceID),
		}
		if err := options.AppendExecutionProviderOpenVINO(config); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}

	default:
		return errors.Errorf("unknown execution provider %q", provider)
	}
	return nil
}
