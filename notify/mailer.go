package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"

	"ecotrade_flows/config"
	"ecotrade_flows/models"
)

const (
	statusSuccess = "Completato con successo"
	statusFailure = "Errore"
	noFile        = "Nessun file disponibile"
)

var bodyTemplate = template.Must(template.New("body").Parse(`<html>
<body>
    <h2>Resoconto Operazione {{.Tag}}</h2>
    <p><strong>Reseller:</strong> {{.Reseller}}</p>
    <p><strong>Username:</strong> {{.Username}}</p>
    <p><strong>Tipo Misura:</strong> {{.Measure}}</p>
    <p><strong>Esito:</strong> {{.Status}}</p>
    <p><strong>File scaricato:</strong> {{.File}}</p>
    <p>In allegato il file di log dell'operazione.</p>
    <hr>
    <p style="font-size: 12px; color: #666;">Questo è un messaggio automatico - Non rispondere</p>
</body>
</html>
`))

type bodyData struct {
	Tag      string
	Reseller string
	Username string
	Measure  string
	Status   string
	File     string
}

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer sends the per-attempt report to an account's recipients over
// SMTP with STARTTLS.
type Mailer struct {
	from string
	tag  string
	dial func() (sender, error)
}

func NewMailer(cfg config.MailConfig, tag string) *Mailer {
	return &Mailer{
		from: cfg.Sender,
		tag:  strings.ToUpper(tag),
		dial: func() (sender, error) {
			return mail.NewClient(cfg.Server,
				mail.WithPort(cfg.Port),
				mail.WithTLSPolicy(mail.TLSMandatory),
				mail.WithSMTPAuth(mail.SMTPAuthLogin),
				mail.WithUsername(cfg.Sender),
				mail.WithPassword(cfg.Password),
			)
		},
	}
}

// Notify reports one attempt. Accounts without recipients are skipped.
func (m *Mailer) Notify(ctx context.Context, acc *models.Account, result *models.RunResult, runErr error) error {
	log := logrus.WithField("account", acc.Label())
	if len(acc.Recipients) == 0 {
		log.Info("No recipients configured, skipping notification")
		return nil
	}

	msg, err := m.compose(acc, result, runErr)
	if err != nil {
		return err
	}

	client, err := m.dial()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send notification to %s: %w", strings.Join(acc.Recipients, ", "), err)
	}
	log.Infof("Notification sent to %s", strings.Join(acc.Recipients, ", "))
	return nil
}

func (m *Mailer) compose(acc *models.Account, result *models.RunResult, runErr error) (*mail.Msg, error) {
	success := runErr == nil && result != nil && result.Success
	status := statusFailure
	if success {
		status = statusSuccess
	}

	data := bodyData{
		Tag:      m.tag,
		Reseller: acc.Reseller,
		Username: acc.Username,
		Measure:  acc.Measure.String(),
		Status:   status,
		File:     noFile,
	}
	if result != nil && result.DownloadPath != "" {
		data.File = result.DownloadPath
	}

	var body bytes.Buffer
	if err := bodyTemplate.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("render notification: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("sender address: %w", err)
	}
	if err := msg.To(acc.Recipients...); err != nil {
		return nil, fmt.Errorf("recipient addresses: %w", err)
	}
	msg.Subject(Subject(m.tag, acc.Measure, success))
	msg.SetBodyString(mail.TypeTextHTML, body.String())

	if result != nil && result.LogPath != "" {
		if _, err := os.Stat(result.LogPath); err == nil {
			msg.AttachFile(result.LogPath)
		}
	}
	return msg, nil
}

// Subject is the notification subject line for one attempt.
func Subject(tag string, measure models.MeasureType, success bool) string {
	status := statusFailure
	if success {
		status = statusSuccess
	}
	return fmt.Sprintf("%s - Esito Download %s - %s", tag, measure, status)
}
