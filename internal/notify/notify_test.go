package notify

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/medlink/hospital-sync/internal/config"
	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/pkg/logger"
	"github.com/medlink/hospital-sync/pkg/messaging"
)

type captureBroker struct {
	channel  string
	messages []messaging.Message
	err      error
}

func (b *captureBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	if b.err != nil {
		return b.err
	}
	b.channel = channel
	b.messages = append(b.messages, message.(messaging.Message))
	return nil
}

func (b *captureBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

func (b *captureBroker) Close() error { return nil }

func testEpisode() *model.PatientEpisode {
	e := model.NewPatientEpisode()
	e.PatientID = "P1"
	e.EpisodeID = "E1"
	return e
}

func TestNotifyChangePublishesEvent(t *testing.T) {
	broker := &captureBroker{}
	n := NewNotifier(broker, "episode-changes", logger.NewLogger(nil))

	err := n.NotifyChange(context.Background(), testEpisode(), "patient information updated (phone)")
	require.NoError(t, err)

	assert.Equal(t, "episode-changes", broker.channel)
	require.Len(t, broker.messages, 1)
	assert.Equal(t, "episode.changed", broker.messages[0].Type)
	event := broker.messages[0].Payload.(ChangeEvent)
	assert.Equal(t, "P1", event.PatientID)
	assert.Equal(t, "E1", event.EpisodeID)
}

func TestNotifyChangeWithoutBrokerIsNoop(t *testing.T) {
	n := NewNotifier(nil, "episode-changes", logger.NewLogger(nil))
	assert.NoError(t, n.NotifyChange(context.Background(), testEpisode(), "summary"))
}

func TestNewMailerBuildsUsableSender(t *testing.T) {
	cfg := config.EmailConfig{
		Enabled: true,
		Host:    "smtp.local",
		Port:    587,
		From:    "bridge@medlink.example",
		To:      []string{"ops@medlink.example"},
	}
	m := NewMailer(cfg, logger.NewLogger(nil))
	require.NotNil(t, m.send)

	var sent *gomail.Message
	m.send = func(msg *gomail.Message) error {
		sent = msg
		return nil
	}

	m.AlertRunFailure(model.RunTypeReconcile, model.RunResult{
		Status:  model.RunError,
		Message: "Processed: 4 (100.0%), Success: 3, Failed: 1",
	})

	require.NotNil(t, sent)
	assert.Equal(t, []string{"bridge@medlink.example"}, sent.GetHeader("From"))
	assert.Equal(t, []string{"ops@medlink.example"}, sent.GetHeader("To"))
	assert.Contains(t, sent.GetHeader("Subject")[0], "reconcile")
}

func TestAlertRunFailureDisabledDoesNotSend(t *testing.T) {
	m := NewMailer(config.EmailConfig{Enabled: false}, logger.NewLogger(nil))
	m.send = func(msg *gomail.Message) error {
		t.Fatal("send called with alerts disabled")
		return nil
	}
	m.AlertRunFailure(model.RunTypeFetch, model.RunResult{Status: model.RunError})
}

func TestAlertRunFailureSendErrorIsSwallowed(t *testing.T) {
	cfg := config.EmailConfig{Enabled: true, Host: "smtp.local", To: []string{"ops@medlink.example"}}
	m := NewMailer(cfg, logger.NewLogger(nil))
	m.send = func(msg *gomail.Message) error {
		return fmt.Errorf("connection refused")
	}
	// Alerts are advisory; a failing SMTP server must not panic or propagate.
	m.AlertRunFailure(model.RunTypeFetch, model.RunResult{Status: model.RunError})
}
