package usecase

import (
	"sync"

	"github.com/example/mri-check/internal/session"
)

// MetricsSummary represents aggregated activity since the process started.
type MetricsSummary struct {
	Predictions        int64            `json:"predictions"`
	PredictionsByLabel map[string]int64 `json:"predictions_by_label"`
	AverageConfidence  float64          `json:"average_confidence"`
	RejectedUploads    int64            `json:"rejected_uploads"`
	EmailsSent         int64            `json:"emails_sent"`
	EmailFailures      int64            `json:"email_failures"`
}

type metrics struct {
	mu              sync.Mutex
	predictions     int64
	byLabel         map[string]int64
	confidenceSum   float64
	rejectedUploads int64
	emailsSent      int64
	emailFailures   int64
}

func newMetrics() *metrics {
	return &metrics{byLabel: make(map[string]int64)}
}

func (m *metrics) observeRender(prev, next session.Result, view session.View) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if next.Prediction != nil && (prev.Prediction == nil || next.IsStale(prev.UploadIdentity)) {
		m.predictions++
		m.byLabel[next.Prediction.Label]++
		m.confidenceSum += next.Prediction.Confidence
	}
	if view.Error != nil {
		switch view.Error.Kind {
		case session.KindDecode, session.KindClassification, session.KindArtifactUnavailable:
			m.rejectedUploads++
		}
	}
}

func (m *metrics) observeDelivery(view session.View) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if view.Error != nil {
		m.emailFailures++
		return
	}
	m.emailsSent++
}

// MetricsSummary returns a snapshot of the counters.
func (uc *SessionUseCase) MetricsSummary() MetricsSummary {
	m := uc.metrics
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := MetricsSummary{
		Predictions:        m.predictions,
		PredictionsByLabel: make(map[string]int64, len(m.byLabel)),
		RejectedUploads:    m.rejectedUploads,
		EmailsSent:         m.emailsSent,
		EmailFailures:      m.emailFailures,
	}
	for label, n := range m.byLabel {
		summary.PredictionsByLabel[label] = n
	}
	if m.predictions > 0 {
		summary.AverageConfidence = m.confidenceSum / float64(m.predictions)
	}
	return summary
}
