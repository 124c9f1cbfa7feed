package classifier

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"go-pneumonet-api/internal/apperrors"
	"go-pneumonet-api/internal/imaging"
	"go-pneumonet-api/internal/logger"
)

// Classifier is the narrow inference contract the prediction service
// depends on. Implementations must be safe for concurrent callers.
type Classifier interface {
	// Infer runs one forward pass and returns the pneumonia probability.
	Infer(t *imaging.Tensor) (float64, error)

	// Loaded reports whether the model is available for inference.
	Loaded() bool

	// State returns the load flag together with the failure reason when
	// the adapter is running in degraded mode.
	State() (loaded bool, reason string)

	// Info returns the model metadata.
	Info() Metadata

	// Close releases backend resources.
	Close()
}

// Adapter wraps an ONNX Runtime session. The session reuses pre-allocated
// input/output tensors, so Infer serializes calls with a mutex.
//
// Load failures are terminal but not fatal: the adapter stays in a
// degraded state where Loaded reports false and Infer refuses to run,
// and the process keeps serving everything else.
type Adapter struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]

	meta    Metadata
	loaded  bool
	loadErr string
}

// New loads the model exactly once. It never returns an error: any failure
// is recorded and the adapter comes back unavailable.
func New(modelPath, metadataPath string) *Adapter {
	a := &Adapter{meta: DefaultMetadata()}

	meta, err := loadMetadata(metadataPath)
	if err != nil {
		logger.WithError(err).WithField("path", metadataPath).
			Warn("Model metadata not usable, falling back to defaults")
	} else {
		a.meta = meta
	}

	if err := a.load(modelPath); err != nil {
		a.loadErr = err.Error()
		logger.WithError(err).WithField("path", modelPath).
			Warn("Model failed to load, running in degraded mode")
		return a
	}

	a.loaded = true
	logger.WithFields(logrus.Fields{
		"path":    modelPath,
		"classes": a.meta.Classes,
	}).Info("Model loaded")
	return a
}

func (a *Adapter) load(modelPath string) error {
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(a.meta.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(a.meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}

	a.inputTensor = inputTensor
	a.outputTensor = outputTensor
	a.session = session
	return nil
}

// Infer runs one blocking forward pass. Same tensor in, same probability
// out; the model runs in inference mode with no stochastic layers.
func (a *Adapter) Infer(t *imaging.Tensor) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loaded {
		return 0, apperrors.NewModelUnavailable(a.loadErr)
	}

	expected := a.meta.InputLength()
	if t == nil || len(t.Data) != expected {
		got := 0
		if t != nil {
			got = len(t.Data)
		}
		return 0, apperrors.NewInferenceFailed(
			fmt.Errorf("input tensor has %d values, model expects %d", got, expected))
	}

	copy(a.inputTensor.GetData(), t.Data)

	if err := a.session.Run(); err != nil {
		return 0, apperrors.NewInferenceFailed(err)
	}

	output := a.outputTensor.GetData()
	if len(output) == 0 {
		return 0, apperrors.NewInferenceFailed(fmt.Errorf("model produced no output"))
	}

	return float64(output[0]), nil
}

func (a *Adapter) Loaded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loaded
}

func (a *Adapter) State() (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loaded, a.loadErr
}

func (a *Adapter) Info() Metadata {
	return a.meta
}

func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.inputTensor != nil {
		a.inputTensor.Destroy()
		a.inputTensor = nil
	}
	if a.outputTensor != nil {
		a.outputTensor.Destroy()
		a.outputTensor = nil
	}
	if a.session != nil {
		a.session.Destroy()
		a.session = nil
	}
	if a.loaded {
		a.loaded = false
		ort.DestroyEnvironment()
	}
}
