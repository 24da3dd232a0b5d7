package service

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"go-drawing-inspector/internal/analyzer"
	apperrors "go-drawing-inspector/internal/errors"
	"go-drawing-inspector/internal/logger"
	"go-drawing-inspector/internal/observer"
	"go-drawing-inspector/internal/repository"
	"go-drawing-inspector/internal/storage"
	"go-drawing-inspector/pkg/models"
	"go-drawing-inspector/pkg/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DrawingAnalysisService runs the tile pipeline for drawings referenced by URL
type DrawingAnalysisService interface {
	AnalyzeDrawing(ctx context.Context, req models.AnalysisRequest) (*models.DrawingAnalysisResponse, error)
	ValidateRequest(req models.AnalysisRequest) error
}

// drawingAnalysisService implements DrawingAnalysisService
type drawingAnalysisService struct {
	fetcher      storage.DrawingFetcher
	artifacts    repository.ArtifactRepository
	analyzer     analyzer.DrawingAnalyzer
	events       observer.Subject
	validator    *validation.RequestValidator
	defaults     analyzer.AnalysisOptions
	fetchTimeout time.Duration
}

// NewDrawingAnalysisService creates a new drawing analysis service
func NewDrawingAnalysisService(
	fetcher storage.DrawingFetcher,
	artifacts repository.ArtifactRepository,
	drawingAnalyzer analyzer.DrawingAnalyzer,
	events observer.Subject,
	validator *validation.RequestValidator,
	defaults analyzer.AnalysisOptions,
	fetchTimeout time.Duration,
) DrawingAnalysisService {
	return &drawingAnalysisService{
		fetcher:      fetcher,
		artifacts:    artifacts,
		analyzer:     drawingAnalyzer,
		events:       events,
		validator:    validator,
		defaults:     defaults,
		fetchTimeout: fetchTimeout,
	}
}

// ValidateRequest validates the drawing URL and the slicing overrides
func (s *drawingAnalysisService) ValidateRequest(req models.AnalysisRequest) error {
	return s.validator.ValidateRequest(req)
}

// AnalyzeDrawing fetches the drawing, analyzes it and persists the artifacts.
// Artifact persistence failures are logged and do not fail the request.
func (s *drawingAnalysisService) AnalyzeDrawing(ctx context.Context, req models.AnalysisRequest) (*models.DrawingAnalysisResponse, error) {
	if err := s.ValidateRequest(req); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	drawingID := req.DrawingID
	if drawingID == "" {
		drawingID = runID
	}
	// observers must see terminal events even after the request is cancelled
	notifyCtx := context.WithoutCancel(ctx)
	s.notify(notifyCtx, observer.AnalysisEvent{EventType: observer.AnalysisStarted, RunID: runID, DrawingID: drawingID, ImageURL: req.URL, Success: true})

	img, format, err := s.fetch(ctx, req.URL)
	if err != nil {
		s.notify(notifyCtx, observer.AnalysisEvent{EventType: observer.DrawingFetchFailed, RunID: runID, DrawingID: drawingID, ImageURL: req.URL, ErrorMessage: err.Error()})
		s.notify(notifyCtx, observer.AnalysisEvent{EventType: observer.AnalysisFailed, RunID: runID, DrawingID: drawingID, ImageURL: req.URL, ErrorMessage: err.Error()})
		return nil, err
	}
	bounds := img.Bounds()
	s.notify(notifyCtx, observer.AnalysisEvent{
		EventType: observer.DrawingFetched, RunID: runID, DrawingID: drawingID, ImageURL: req.URL, Success: true,
		Metadata: map[string]interface{}{"format": format, "width": bounds.Dx(), "height": bounds.Dy()},
	})

	opts := s.optionsFor(req).
		WithRunID(runID).
		WithProgress(func(p models.ProgressEvent) {
			s.notify(notifyCtx, observer.ProgressEvent(p))
		})
	if req.ReuseExistingTiles {
		opts = opts.WithReusedTiles(s.storedGrid(ctx, drawingID))
	}

	drawing := models.Drawing{ID: drawingID, Width: bounds.Dx(), Height: bounds.Dy(), FileType: format}
	result, err := s.analyzer.Analyze(ctx, drawing, img, opts)
	if err != nil {
		s.notify(notifyCtx, observer.AnalysisEvent{EventType: observer.AnalysisFailed, RunID: runID, DrawingID: drawingID, ImageURL: req.URL, ErrorMessage: err.Error()})
		return nil, err
	}

	artifacts, err := s.saveArtifacts(notifyCtx, drawingID, result)
	if err != nil {
		logger.ForRun(runID, drawingID).WithError(err).Warn("Failed to persist some drawing artifacts")
	}

	processing := time.Duration(result.Stats.ProcessingTime * float64(time.Second))
	done := observer.AnalysisEvent{
		EventType: observer.AnalysisCompleted, RunID: runID, DrawingID: drawingID, ImageURL: req.URL,
		ProcessingTime: processing, Success: true,
		Metadata: map[string]interface{}{"components": len(result.GlobalComponents), "warnings": len(result.Warnings)},
	}
	if result.Cancelled {
		done.EventType = observer.AnalysisCancelled
		done.Success = false
	}
	s.notify(notifyCtx, done)

	return toResponse(req.URL, result, artifacts), nil
}

func (s *drawingAnalysisService) fetch(ctx context.Context, url string) (image.Image, string, error) {
	fetchCtx := ctx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}
	img, format, err := s.fetcher.FetchDrawing(fetchCtx, url)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "", apperrors.NewTimeoutError("drawing fetch timeout", err)
		}
		return nil, "", apperrors.NewNetworkError("failed to fetch drawing", err)
	}
	return img, format, nil
}

// optionsFor applies the request overrides to the configured defaults
func (s *drawingAnalysisService) optionsFor(req models.AnalysisRequest) analyzer.AnalysisOptions {
	opts := s.defaults
	if req.TileSize != nil {
		opts.TileSize = *req.TileSize
	}
	if req.Overlap != nil {
		opts.Overlap = *req.Overlap
	}
	if req.BatchSize != nil {
		opts.BatchSize = *req.BatchSize
	}
	if req.ConcurrencyCap != nil {
		opts.ConcurrencyCap = *req.ConcurrencyCap
	}
	if req.ContextualChaining != nil {
		opts.ContextualChaining = *req.ContextualChaining
	}
	return opts
}

// storedGrid returns the slice grid saved by an earlier stage, or nil
func (s *drawingAnalysisService) storedGrid(ctx context.Context, drawingID string) *models.SliceGrid {
	grid, err := s.artifacts.LoadSliceGrid(ctx, drawingID)
	switch {
	case err == nil:
		return grid
	case errors.Is(err, repository.ErrArtifactNotFound):
		logger.WithField("drawing_id", drawingID).Debug("No stored slice grid to reuse")
	default:
		logger.WithFields(logrus.Fields{
			"drawing_id": drawingID,
			"error":      err.Error(),
		}).Warn("Failed to load stored slice grid")
	}
	return nil
}

// saveArtifacts stores the run outputs in parallel. The returned map holds
// the URL of every artifact that was saved.
func (s *drawingAnalysisService) saveArtifacts(ctx context.Context, drawingID string, result *models.AnalysisResult) (map[string]string, error) {
	var mu sync.Mutex
	urls := make(map[string]string, 4)
	record := func(name string, save func(context.Context) (string, error)) func() error {
		return func() error {
			url, err := save(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			urls[name] = url
			mu.Unlock()
			return nil
		}
	}

	var g errgroup.Group
	g.Go(record(repository.ArtifactSliceGrid, func(ctx context.Context) (string, error) {
		return s.artifacts.SaveSliceGrid(ctx, drawingID, result.Grid)
	}))
	g.Go(record(repository.ArtifactMergedText, func(ctx context.Context) (string, error) {
		return s.artifacts.SaveMergedText(ctx, drawingID, result.TextRegions)
	}))
	g.Go(record(repository.ArtifactComponents, func(ctx context.Context) (string, error) {
		return s.artifacts.SaveComponents(ctx, drawingID, result.GlobalComponents)
	}))
	g.Go(record(repository.ArtifactOverview, func(ctx context.Context) (string, error) {
		return s.artifacts.SaveOverview(ctx, drawingID, result.Overview)
	}))
	err := g.Wait()
	return urls, err
}

func (s *drawingAnalysisService) notify(ctx context.Context, event observer.AnalysisEvent) {
	if s.events == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.events.NotifyObservers(ctx, event)
}

func toResponse(url string, result *models.AnalysisResult, artifacts map[string]string) *models.DrawingAnalysisResponse {
	warnings := result.Warnings
	if warnings == nil {
		warnings = []models.Warning{}
	}
	components := result.GlobalComponents
	if components == nil {
		components = []models.GlobalComponent{}
	}
	return &models.DrawingAnalysisResponse{
		RunID:             result.RunID,
		DrawingID:         result.DrawingID,
		ImageURL:          url,
		Timestamp:         result.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		ProcessingTimeSec: result.Stats.ProcessingTime,
		Components:        components,
		Overview:          result.Overview,
		Warnings:          warnings,
		Stats:             result.Stats,
		Artifacts:         artifacts,
		Cancelled:         result.Cancelled,
	}
}
