package models

// Predicted classes. The model outputs the pneumonia probability; normal is
// its complement.
const (
	ClassNormal    = "NORMAL"
	ClassPneumonia = "PNEUMONIA"
)

// Statuses reported by prediction envelopes.
const (
	StatusSuccess        = "success"
	StatusPartialSuccess = "partial_success"
)

// ClassificationResult is the outcome of classifying a single image.
// PredictedClass is PNEUMONIA exactly when the pneumonia probability is
// greater than or equal to the threshold captured in ThresholdUsed.
type ClassificationResult struct {
	PneumoniaProbability float64 `json:"pneumonia_probability"`
	NormalProbability    float64 `json:"normal_probability"`
	PredictedClass       string  `json:"predicted_class"`
	Confidence           float64 `json:"confidence"`
	ThresholdUsed        float64 `json:"threshold_used"`
}

// PredictionEnvelope wraps a single-image result for the transport layer.
type PredictionEnvelope struct {
	Timestamp  string               `json:"timestamp"`
	Filename   string               `json:"filename"`
	Prediction ClassificationResult `json:"prediction"`
	Status     string               `json:"status"`
}

// BatchPrediction is one successful item of a batch response.
type BatchPrediction struct {
	Filename string `json:"filename"`
	ClassificationResult
}

// BatchItemError describes one failed item of a batch response.
type BatchItemError struct {
	Index    int    `json:"index"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error"`
	Message  string `json:"message"`
}

// BatchEnvelope aggregates an ordered batch. Predictions and Errors are
// index-aligned with the input: for every i exactly one of Predictions[i]
// and Errors[i] is non-nil, and both slices have length TotalImages.
type BatchEnvelope struct {
	Timestamp             string             `json:"timestamp"`
	TotalImages           int                `json:"total_images"`
	SuccessfulPredictions int                `json:"successful_predictions"`
	FailedPredictions     int                `json:"failed_predictions"`
	Predictions           []*BatchPrediction `json:"predictions"`
	Errors                []*BatchItemError  `json:"errors"`
	Status                string             `json:"status"`
}

// ModelInfo describes the deployed classifier. Status is "ready" or
// "unavailable"; the endpoint serving it works in both states.
type ModelInfo struct {
	ModelName               string   `json:"model_name"`
	ModelType               string   `json:"model_type"`
	InputShape              []int    `json:"input_shape"`
	NumParameters           int64    `json:"num_parameters,omitempty"`
	OutputClasses           []string `json:"output_classes"`
	ClassificationThreshold float64  `json:"classification_threshold"`
	SupportedFormats        []string `json:"supported_formats"`
	Status                  string   `json:"status"`
	UnavailableReason       string   `json:"unavailable_reason,omitempty"`
}

// Health is the health-check payload.
type Health struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	ModelLoaded bool   `json:"model_loaded"`
}

// ThresholdResponse reports the current classification threshold.
type ThresholdResponse struct {
	CurrentThreshold float64 `json:"current_threshold"`
	Description      string  `json:"description,omitempty"`
}

// ThresholdUpdate reports a successful threshold change.
type ThresholdUpdate struct {
	Status       string  `json:"status"`
	NewThreshold float64 `json:"new_threshold"`
	Message      string  `json:"message"`
}
