package cmd

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-pantry/config"
	"github.com/nvr-ai/go-pantry/detector"
	"github.com/nvr-ai/go-pantry/inference"
	"github.com/nvr-ai/go-pantry/manifest"
)

// loadDetector initializes ONNX Runtime, loads the model with the labels from
// its dataset manifest and wraps it in a detection adapter. The returned
// cleanup closes the model and shuts the runtime down.
func loadDetector(cfg config.Config, logger *zap.SugaredLogger) (*detector.Adapter, func(), error) {
	m, err := manifest.Load(cfg.Model.Manifest)
	if err != nil {
		return nil, nil, err
	}
	labels, err := m.Labels()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid manifest %s", cfg.Model.Manifest)
	}

	provider, err := inference.ParseProvider(cfg.Model.Provider)
	if err != nil {
		return nil, nil, err
	}

	libPath := cfg.Model.SharedLibrary
	if libPath == "" {
		libPath = inference.SharedLibPath()
	}
	if err := inference.InitializeRuntime(libPath); err != nil {
		return nil, nil, err
	}

	model, err := inference.NewModel(inference.ModelArgs{
		ModelPath:      cfg.Model.Path,
		Labels:         labels,
		InputSize:      cfg.Model.InputSize,
		NMSThreshold:   cfg.Model.NMSThreshold,
		IntraOpThreads: cfg.Model.IntraOpThreads,
		InterOpThreads: cfg.Model.InterOpThreads,
		Provider:       provider,
		DeviceID:       cfg.Model.DeviceID,
	})
	if err != nil {
		_ = inference.ShutdownRuntime()
		return nil, nil, err
	}

	adapter, err := detector.NewAdapter(model)
	if err != nil {
		model.Close()
		_ = inference.ShutdownRuntime()
		return nil, nil, err
	}

	logger.Infow("model loaded",
		"path", cfg.Model.Path,
		"classes", len(labels),
		"input_size", cfg.Model.InputSize,
		"provider", provider,
	)

	cleanup := func() {
		if err := adapter.Close(); err != nil {
			logger.Warnw("failed to close model", "error", err)
		}
		if err := inference.ShutdownRuntime(); err != nil {
			logger.Warnw("failed to shut down onnxruntime", "error", err)
		}
	}
	return adapter, cleanup, nil
}
