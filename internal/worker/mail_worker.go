package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"chatforge/internal/platform/rabbitmq"
)

// SMTPSettings is the delivery endpoint for outbound mail. An empty Host
// switches the worker to log-only mode, which is what development setups use.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MailWorker drains the mail queue and delivers each job over SMTP.
type MailWorker struct {
	conn      *amqp.Connection
	smtp      SMTPSettings
	queueName string
	log       zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMailWorker(conn *amqp.Connection, smtp SMTPSettings, queueName string, log zerolog.Logger) *MailWorker {
	return &MailWorker{
		conn:      conn,
		smtp:      smtp,
		queueName: queueName,
		log:       log.With().Str("component", "mail_worker").Logger(),
	}
}

func (w *MailWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var job rabbitmq.MailJob
				if err := json.Unmarshal(d.Body, &job); err != nil {
					w.log.Error().Err(err).Msg("decode mail job failed")
					_ = d.Nack(false, false)
					continue
				}

				if err := w.deliver(job); err != nil {
					w.log.Error().Err(err).Str("to", job.To).Msg("deliver mail failed")
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *MailWorker) deliver(job rabbitmq.MailJob) error {
	if w.smtp.Host == "" {
		w.log.Info().Str("to", job.To).Str("subject", job.Subject).Msg("smtp not configured, logging mail instead")
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		w.smtp.From, job.To, job.Subject, job.Body)

	addr := fmt.Sprintf("%s:%d", w.smtp.Host, w.smtp.Port)
	var auth smtp.Auth
	if w.smtp.Username != "" {
		auth = smtp.PlainAuth("", w.smtp.Username, w.smtp.Password, w.smtp.Host)
	}
	if err := smtp.SendMail(addr, auth, w.smtp.From, []string{job.To}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

func (w *MailWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
