package observer

import (
	"context"
	"sync"
	"time"

	"go-drawing-inspector/pkg/models"

	"github.com/sirupsen/logrus"
)

// AnalysisEvent represents a drawing analysis lifecycle event
type AnalysisEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	RunID          string                 `json:"run_id"`
	DrawingID      string                 `json:"drawing_id"`
	ImageURL       string                 `json:"image_url,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time,omitempty"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Progress       *models.ProgressEvent  `json:"progress,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of analysis event
type EventType string

const (
	AnalysisStarted    EventType = "analysis_started"
	AnalysisCompleted  EventType = "analysis_completed"
	AnalysisFailed     EventType = "analysis_failed"
	AnalysisCancelled  EventType = "analysis_cancelled"
	BatchCompleted     EventType = "batch_completed"
	DrawingFetched     EventType = "drawing_fetched"
	DrawingFetchFailed EventType = "drawing_fetch_failed"
)

// ProgressEvent wraps a per-batch engine event
func ProgressEvent(p models.ProgressEvent) AnalysisEvent {
	return AnalysisEvent{
		EventType: BatchCompleted,
		Timestamp: time.Now(),
		RunID:     p.RunID,
		DrawingID: p.DrawingID,
		Success:   true,
		Progress:  &p,
	}
}

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event AnalysisEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event AnalysisEvent)
}

// LoggingObserver logs analysis events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles analysis events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"run_id":     event.RunID,
		"drawing_id": event.DrawingID,
		"success":    event.Success,
	}
	if event.ImageURL != "" {
		fields["image_url"] = event.ImageURL
	}
	if event.ProcessingTime > 0 {
		fields["processing_time"] = event.ProcessingTime
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	if p := event.Progress; p != nil {
		fields["stage"] = p.Stage
		fields["batch_index"] = p.BatchIndex
		fields["total_batches"] = p.TotalBatches
		fields["tiles_done"] = p.TilesDone
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case AnalysisStarted:
		entry.Info("Drawing analysis started")
	case AnalysisCompleted:
		entry.Info("Drawing analysis completed")
	case AnalysisCancelled:
		entry.Warn("Drawing analysis cancelled")
	case AnalysisFailed:
		entry.Error("Drawing analysis failed")
	case BatchCompleted:
		entry.Debug("Batch completed")
	case DrawingFetched:
		entry.Debug("Drawing fetched successfully")
	case DrawingFetchFailed:
		entry.Error("Drawing fetch failed")
	default:
		entry.Info("Analysis event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from analysis events
type MetricsObserver struct {
	mu                  sync.RWMutex
	totalAnalyses       int64
	successfulAnalyses  int64
	failedAnalyses      int64
	cancelledAnalyses   int64
	batchesCompleted    int64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles analysis events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case AnalysisStarted:
		o.totalAnalyses++
	case AnalysisCompleted:
		o.successfulAnalyses++
		o.totalProcessingTime += event.ProcessingTime
	case AnalysisCancelled:
		o.cancelledAnalyses++
	case AnalysisFailed:
		o.failedAnalyses++
	case BatchCompleted:
		o.batchesCompleted++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.successfulAnalyses > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.successfulAnalyses)
	}

	return map[string]interface{}{
		"total_analyses":        o.totalAnalyses,
		"successful_analyses":   o.successfulAnalyses,
		"failed_analyses":       o.failedAnalyses,
		"cancelled_analyses":    o.cancelledAnalyses,
		"batches_completed":     o.batchesCompleted,
		"total_processing_time": o.totalProcessingTime,
		"avg_processing_time":   avgProcessingTime,
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers fans the event out to all observers concurrently and
// returns once each has handled it, so per-run events stay ordered.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event AnalysisEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, observer := range observers {
		wg.Add(1)
		go func(obs Observer) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
	wg.Wait()
}
