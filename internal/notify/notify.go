// Package notify fans out operational signals: change events on the message
// broker for downstream consumers, and email alerts to operators when a
// pipeline run ends in error.
package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/medlink/hospital-sync/internal/config"
	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/pkg/logger"
	"github.com/medlink/hospital-sync/pkg/messaging"
)

// ChangeEvent is the payload published for every episode whose update
// produced tracked changes.
type ChangeEvent struct {
	PatientID string `json:"patient_id"`
	EpisodeID string `json:"episode_id"`
	Summary   string `json:"summary"`
}

// Notifier publishes change events to a broker channel.
type Notifier struct {
	broker  messaging.Broker
	channel string
	logger  *logger.Logger
}

func NewNotifier(broker messaging.Broker, channel string, log *logger.Logger) *Notifier {
	return &Notifier{broker: broker, channel: channel, logger: log}
}

// NotifyChange publishes one change event. A nil broker disables publication.
func (n *Notifier) NotifyChange(ctx context.Context, episode *model.PatientEpisode, summary string) error {
	if n.broker == nil {
		return nil
	}
	msg := messaging.Message{
		Type: "episode.changed",
		Payload: ChangeEvent{
			PatientID: episode.PatientID,
			EpisodeID: episode.EpisodeID,
			Summary:   summary,
		},
	}
	if err := n.broker.Publish(ctx, n.channel, msg); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	n.logger.Debug("change event published", "patient", episode.PatientID, "episode", episode.EpisodeID)
	return nil
}

// Mailer sends run failure alerts over SMTP.
type Mailer struct {
	cfg    config.EmailConfig
	send   func(m *gomail.Message) error
	logger *logger.Logger
}

func NewMailer(cfg config.EmailConfig, log *logger.Logger) *Mailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &Mailer{
		cfg: cfg,
		send: func(m *gomail.Message) error {
			return dialer.DialAndSend(m)
		},
		logger: log,
	}
}

// AlertRunFailure emails the configured operators about a failed run. Alerts
// are advisory: failures to send are logged, never propagated.
func (m *Mailer) AlertRunFailure(runType string, result model.RunResult) {
	if !m.cfg.Enabled {
		return
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To...)
	msg.SetHeader("Subject", fmt.Sprintf("hospital-sync: %s run finished with errors", runType))
	msg.SetBody("text/plain", result.Message)

	if err := m.send(msg); err != nil {
		m.logger.Error(err, "failed to send run failure alert", "run_type", runType)
	}
}
