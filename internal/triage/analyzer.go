package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/helperdesk/helper-tickets/internal/domain"
)

// ErrAnalysisFailed wraps every reason the model produced no usable result.
var ErrAnalysisFailed = errors.New("triage: analysis failed")

// Analyzer turns a ticket into a validated triage result.
type Analyzer struct {
	model  Model
	logger *zap.Logger
}

// NewAnalyzer wires an analyzer to a model.
func NewAnalyzer(model Model, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{model: model, logger: logger}
}

// Analyze asks the model for a triage of the ticket. On any failure it
// returns an error wrapping ErrAnalysisFailed and a zero result.
func (a *Analyzer) Analyze(ctx context.Context, title, description string) (domain.TriageResult, error) {
	prompt, err := BuildPrompt(title, description)
	if err != nil {
		return domain.TriageResult{}, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	raw, err := a.model.Generate(ctx, SystemPrompt(), prompt)
	if err != nil {
		return domain.TriageResult{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	if strings.TrimSpace(raw) == "" {
		return domain.TriageResult{}, fmt.Errorf("%w: empty model response", ErrAnalysisFailed)
	}

	outcome := Parse(raw)
	if !outcome.Parsed() {
		a.logger.Warn("triage response unparseable", zap.String("raw", truncateRunes(raw, 200)))
		return domain.TriageResult{}, fmt.Errorf("%w: no JSON object in response", ErrAnalysisFailed)
	}

	a.logger.Debug("triage response parsed", zap.String("strategy", string(outcome.Strategy)))
	return Validate(outcome.Draft), nil
}

