// Package alert provides the alert transition publisher boundary. Real
// notification delivery (email/WhatsApp/push) lives in an external
// collaborator; this package only hands events across that boundary.
package alert

import (
	"context"

	"github.com/riskwatch/riskwatch/internal/common"
	"github.com/riskwatch/riskwatch/internal/interfaces"
	"github.com/riskwatch/riskwatch/internal/models"
)

// Compile-time interface check
var _ interfaces.AlertPublisher = (*LogPublisher)(nil)

// LogPublisher records alert transitions in the structured log. It is the
// default sink when no delivery collaborator is configured, and doubles as
// the audit trail for transitions.
type LogPublisher struct {
	logger *common.Logger
}

// NewLogPublisher creates a publisher writing transitions to the log.
func NewLogPublisher(logger *common.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// PublishAlertTransitions logs each transition at a level matching severity.
func (p *LogPublisher) PublishAlertTransitions(_ context.Context, transitions []models.AlertTransition) {
	for _, tr := range transitions {
		event := p.logger.Info()
		if tr.Transition != models.TransitionResolved && tr.Severity == models.SeverityCritical {
			event = p.logger.Warn()
		}
		event.
			Str("portfolio", tr.PortfolioID).
			Str("alert", tr.AlertID).
			Str("type", string(tr.Type)).
			Str("key", tr.Key).
			Str("severity", string(tr.Severity)).
			Str("transition", string(tr.Transition)).
			Msg(tr.Message)
	}
}
