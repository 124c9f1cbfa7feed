package classifier

import (
	"encoding/json"
	"fmt"
	"os"

	"go-pneumonet-api/pkg/models"
)

// Metadata is the sidecar description shipped next to the ONNX export.
type Metadata struct {
	ModelName     string   `json:"model_name"`
	ModelType     string   `json:"model_type"`
	InputShape    []int64  `json:"input_shape"`
	OutputShape   []int64  `json:"output_shape"`
	Classes       []string `json:"classes"`
	ImageSize     int      `json:"image_size"`
	NumParameters int64    `json:"num_parameters"`
}

// DefaultMetadata matches the MobileNetV2 pneumonia export: one RGB
// 224x224 image in, one sigmoid pneumonia probability out.
func DefaultMetadata() Metadata {
	return Metadata{
		ModelName:   "PneumoNet AI",
		ModelType:   "MobileNetV2 (Transfer Learning)",
		InputShape:  []int64{1, 224, 224, 3},
		OutputShape: []int64{1, 1},
		Classes:     []string{models.ClassNormal, models.ClassPneumonia},
		ImageSize:   224,
	}
}

func loadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	meta := DefaultMetadata()
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if len(meta.InputShape) == 0 || len(meta.OutputShape) == 0 {
		return Metadata{}, fmt.Errorf("metadata is missing input or output shape")
	}
	if meta.ImageSize <= 0 {
		return Metadata{}, fmt.Errorf("metadata has invalid image_size: %d", meta.ImageSize)
	}
	return meta, nil
}

// InputLength is the flattened element count the model expects for one image.
func (m Metadata) InputLength() int {
	n := 1
	for _, dim := range m.InputShape {
		if dim > 0 {
			n *= int(dim)
		}
	}
	return n
}
