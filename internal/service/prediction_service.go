package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"go-pneumonet-api/internal/apperrors"
	"go-pneumonet-api/internal/classifier"
	"go-pneumonet-api/internal/imaging"
	"go-pneumonet-api/internal/logger"
	"go-pneumonet-api/internal/storage"
	"go-pneumonet-api/internal/threshold"
	"go-pneumonet-api/pkg/models"
)

// PredictionService runs the full pipeline for one image or an ordered
// batch: decode, preprocess, infer, threshold decision.
type PredictionService interface {
	Predict(ctx context.Context, src imaging.Source) (*models.PredictionEnvelope, error)
	PredictBatch(ctx context.Context, srcs []imaging.Source) (*models.BatchEnvelope, error)

	ModelInfo() *models.ModelInfo
	Health() *models.Health

	Threshold() float64
	SetThreshold(v float64) (float64, error)
}

type predictionService struct {
	decoder      *imaging.Decoder
	preprocessor *imaging.Preprocessor
	classifier   classifier.Classifier
	thresholds   *threshold.Store
	archive      *storage.ArchiveQueue
}

// New wires the prediction pipeline. The archive queue may be backed by a
// no-op archiver but must not be nil.
func New(
	decoder *imaging.Decoder,
	preprocessor *imaging.Preprocessor,
	cls classifier.Classifier,
	thresholds *threshold.Store,
	archive *storage.ArchiveQueue,
) PredictionService {
	return &predictionService{
		decoder:      decoder,
		preprocessor: preprocessor,
		classifier:   cls,
		thresholds:   thresholds,
		archive:      archive,
	}
}

// Predict classifies a single image. Every failure comes back as an
// *apperrors.AppError from the closed taxonomy; nothing propagates raw.
func (s *predictionService) Predict(ctx context.Context, src imaging.Source) (*models.PredictionEnvelope, error) {
	result, filename, err := s.predictOne(ctx, src)
	if err != nil {
		return nil, err
	}

	return &models.PredictionEnvelope{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Filename:   filename,
		Prediction: *result,
		Status:     models.StatusSuccess,
	}, nil
}

// PredictBatch classifies an ordered sequence of images with per-item
// failure isolation: a corrupt item records an error at its index and the
// remaining items still run. Only a missing model fails the whole batch,
// since every item would fail identically.
func (s *predictionService) PredictBatch(ctx context.Context, srcs []imaging.Source) (*models.BatchEnvelope, error) {
	if !s.classifier.Loaded() {
		_, reason := s.classifier.State()
		return nil, apperrors.NewModelUnavailable(reason)
	}

	n := len(srcs)
	envelope := &models.BatchEnvelope{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		TotalImages: n,
		Predictions: make([]*models.BatchPrediction, n),
		Errors:      make([]*models.BatchItemError, n),
	}

	for i, src := range srcs {
		result, filename, err := s.predictOne(ctx, src)
		if err != nil {
			envelope.Errors[i] = batchError(i, src, err)
			envelope.FailedPredictions++
			continue
		}
		envelope.Predictions[i] = &models.BatchPrediction{
			Filename:             filename,
			ClassificationResult: *result,
		}
		envelope.SuccessfulPredictions++
	}

	envelope.Status = models.StatusSuccess
	if envelope.FailedPredictions > 0 {
		envelope.Status = models.StatusPartialSuccess
	}

	logger.WithFields(logrus.Fields{
		"total":      envelope.TotalImages,
		"successful": envelope.SuccessfulPredictions,
		"failed":     envelope.FailedPredictions,
	}).Info("Batch prediction completed")

	return envelope, nil
}

// predictOne is the pipeline for a single source. The classifier is never
// touched until decode and preprocessing have succeeded, and the threshold
// is read at evaluation time; a concurrent threshold update resolves as
// "last write before evaluation wins".
func (s *predictionService) predictOne(ctx context.Context, src imaging.Source) (*models.ClassificationResult, string, error) {
	start := time.Now()

	artifact, err := s.decoder.Decode(src)
	if err != nil {
		return nil, "", err
	}

	s.archive.Submit(artifact.Filename, artifact.Raw)

	tensor, err := s.preprocessor.Prepare(artifact)
	if err != nil {
		return nil, "", err
	}

	if !s.classifier.Loaded() {
		_, reason := s.classifier.State()
		return nil, "", apperrors.NewModelUnavailable(reason)
	}

	probability, err := s.classifier.Infer(tensor)
	if err != nil {
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			err = apperrors.NewInternal("unexpected inference fault", err)
		}
		return nil, "", err
	}

	result := Classify(probability, s.thresholds.Get())

	logger.WithFields(logrus.Fields{
		"filename":           artifact.Filename,
		"format":             artifact.Format,
		"predicted_class":    result.PredictedClass,
		"confidence":         result.Confidence,
		"processing_time_ms": time.Since(start).Milliseconds(),
	}).Info("Prediction made")

	return &result, artifact.Filename, nil
}

// Classify turns a raw pneumonia probability into a result against the
// given threshold. The decision uses the unrounded probability; rounding is
// presentation only. A probability exactly equal to the threshold
// classifies as PNEUMONIA.
func Classify(probability, thresholdUsed float64) models.ClassificationResult {
	class := models.ClassNormal
	if probability >= thresholdUsed {
		class = models.ClassPneumonia
	}

	return models.ClassificationResult{
		PneumoniaProbability: round(probability, 4),
		NormalProbability:    round(1-probability, 4),
		PredictedClass:       class,
		Confidence:           round(math.Max(probability, 1-probability)*100, 2),
		ThresholdUsed:        thresholdUsed,
	}
}

func (s *predictionService) ModelInfo() *models.ModelInfo {
	meta := s.classifier.Info()
	loaded, reason := s.classifier.State()

	status := "ready"
	if !loaded {
		status = "unavailable"
	}

	// Drop the batch dimension for the externally visible shape.
	shape := make([]int, 0, len(meta.InputShape))
	for i, dim := range meta.InputShape {
		if i == 0 && dim <= 1 {
			continue
		}
		shape = append(shape, int(dim))
	}

	return &models.ModelInfo{
		ModelName:               meta.ModelName,
		ModelType:               meta.ModelType,
		InputShape:              shape,
		NumParameters:           meta.NumParameters,
		OutputClasses:           meta.Classes,
		ClassificationThreshold: s.thresholds.Get(),
		SupportedFormats:        imaging.SupportedFormats(),
		Status:                  status,
		UnavailableReason:       reason,
	}
}

func (s *predictionService) Health() *models.Health {
	return &models.Health{
		Status:      "healthy",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		ModelLoaded: s.classifier.Loaded(),
	}
}

func (s *predictionService) Threshold() float64 {
	return s.thresholds.Get()
}

func (s *predictionService) SetThreshold(v float64) (float64, error) {
	if err := s.thresholds.Set(v); err != nil {
		return s.thresholds.Get(), err
	}
	logger.WithField("threshold", v).Info("Classification threshold updated")
	return v, nil
}

func batchError(index int, src imaging.Source, err error) *models.BatchItemError {
	item := &models.BatchItemError{
		Index: index,
		Error: string(apperrors.KindOf(err)),
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		item.Message = appErr.Message
	} else {
		item.Message = err.Error()
	}

	if !src.IsBase64 && src.Filename != "" {
		item.Filename = imaging.SanitizeFilename(src.Filename)
	}
	return item
}

func round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
