package activities

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/metrics"
	"github.com/shahryar908/agenticrag/internal/workflows"
)

// QualityGate falls back to direct generation when retrieval confidence is below
// the threshold. Otherwise only the reasoning trace changes.
func (a *Activities) QualityGate(s workflows.State) workflows.State {
	g := a.GateConfig()
	if len(s.RetrievedDocs) == 0 {
		return s.WithNote(noDocumentsGateNote)
	}
	if s.Confidence >= g.Threshold {
		return s.WithNote(fmt.Sprintf("Retrieval confidence %.2f meets threshold %.2f, keeping documents.", s.Confidence, g.Threshold))
	}

	metrics.QualityGateFallbacks.Inc()
	a.logger.Info("Low retrieval confidence, falling back to direct generation",
		zap.Float64("confidence", s.Confidence),
		zap.Float64("threshold", g.Threshold),
	)
	s.NeedsRetrieval = false
	if g.DropLowConfidenceDocs {
		s.RetrievedDocs = nil
	}
	return s.WithNote(lowConfidenceNote)
}
