package notify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"ecotrade_flows/config"
	"ecotrade_flows/models"
)

type fakeSender struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeSender) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	f.sent = append(f.sent, messages...)
	return f.err
}

func testMailer(s *fakeSender) *Mailer {
	m := NewMailer(config.MailConfig{Sender: "robot@example.com", Server: "smtp.test", Port: 587}, "ecotrade")
	m.dial = func() (sender, error) { return s, nil }
	return m
}

func testAccount() *models.Account {
	return &models.Account{
		Reseller:   "Acme Energia",
		Username:   "acme01",
		Measure:    models.MeasureGas,
		Recipients: []string{"ops@acme.test", "billing@acme.test"},
	}
}

func bodyOf(t *testing.T, msg *mail.Msg) string {
	t.Helper()
	parts := msg.GetParts()
	require.NotEmpty(t, parts)
	content, err := parts[0].GetContent()
	require.NoError(t, err)
	return string(content)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "ECOTRADE - Esito Download Power - Completato con successo", Subject("ECOTRADE", models.MeasurePower, true))
	assert.Equal(t, "ECOTRADE - Esito Download Gas - Errore", Subject("ECOTRADE", models.MeasureGas, false))
}

func TestNotify_NoRecipientsIsNoop(t *testing.T) {
	s := &fakeSender{}
	acc := testAccount()
	acc.Recipients = nil

	err := testMailer(s).Notify(context.Background(), acc, &models.RunResult{Success: true}, nil)
	require.NoError(t, err)
	assert.Empty(t, s.sent)
}

func TestNotify_Success(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "flows_log_Gas_20250514_093005.txt")
	require.NoError(t, os.WriteFile(logPath, []byte("run log"), 0644))

	s := &fakeSender{}
	result := &models.RunResult{Success: true, LogPath: logPath, DownloadPath: "/data/2025/maggio/14/20250514_093005_ECOTRADE.zip"}
	require.NoError(t, testMailer(s).Notify(context.Background(), testAccount(), result, nil))
	require.Len(t, s.sent, 1)

	msg := s.sent[0]
	assert.Equal(t, []string{"ECOTRADE - Esito Download Gas - Completato con successo"}, msg.GetGenHeader(mail.HeaderSubject))

	to, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ops@acme.test", "billing@acme.test"}, to)

	body := bodyOf(t, msg)
	assert.Contains(t, body, "Acme Energia")
	assert.Contains(t, body, "20250514_093005_ECOTRADE.zip")

	attachments := msg.GetAttachments()
	require.Len(t, attachments, 1)
	assert.Equal(t, "flows_log_Gas_20250514_093005.txt", attachments[0].Name)
}

func TestNotify_FailureWithoutFile(t *testing.T) {
	s := &fakeSender{}
	result := &models.RunResult{LogPath: filepath.Join(t.TempDir(), "missing.txt")}
	require.NoError(t, testMailer(s).Notify(context.Background(), testAccount(), result, assert.AnError))
	require.Len(t, s.sent, 1)

	msg := s.sent[0]
	assert.Equal(t, []string{"ECOTRADE - Esito Download Gas - Errore"}, msg.GetGenHeader(mail.HeaderSubject))
	assert.Contains(t, bodyOf(t, msg), "Nessun file disponibile")
	assert.Empty(t, msg.GetAttachments())
}

func TestNotify_SendError(t *testing.T) {
	s := &fakeSender{err: assert.AnError}
	err := testMailer(s).Notify(context.Background(), testAccount(), nil, assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
}
