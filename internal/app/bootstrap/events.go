package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/mindcare-booking/internal/config"
	"github.com/wolfman30/mindcare-booking/internal/doctors"
	"github.com/wolfman30/mindcare-booking/internal/events"
	"github.com/wolfman30/mindcare-booking/internal/notify"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

// BuildEventSink returns the handler the outbox deliverer drives: the SQS
// sink when a queue is configured (a log sink otherwise), followed by booking
// emails when an email provider is available.
func BuildEventSink(cfg *appconfig.Config, sqsClient *sqs.Client, email notify.EmailSender, directory *doctors.Repository, logger *logging.Logger) events.DeliveryHandler {
	if logger == nil {
		logger = logging.Default()
	}
	var sinks events.Fanout
	if cfg != nil && strings.TrimSpace(cfg.EventsQueueURL) != "" && sqsClient != nil {
		logger.Info("appointment events delivered to sqs", "queue_url", cfg.EventsQueueURL)
		sinks = append(sinks, events.NewSQSSink(sqsClient, cfg.EventsQueueURL))
	} else {
		logger.Info("appointment events delivered to log")
		sinks = append(sinks, events.NewLogSink(logger))
	}
	if email != nil {
		var inbox string
		if cfg != nil {
			inbox = cfg.ClinicNotifyEmail
		}
		var dir notify.DoctorDirectory
		if directory != nil {
			dir = directory
		}
		sinks = append(sinks, notify.NewNotifier(email, dir, inbox, logger))
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return sinks
}

// BuildEmailSender picks the provider named by cfg.EmailProvider. It returns
// nil when email is off or the provider is missing credentials.
func BuildEmailSender(cfg *appconfig.Config, sesClient *sesv2.Client, logger *logging.Logger) notify.EmailSender {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			logger.Warn("sendgrid selected without SENDGRID_API_KEY; booking emails disabled")
			return nil
		}
		return sender
	case "ses":
		if sesClient == nil {
			logger.Warn("ses selected without aws config; booking emails disabled")
			return nil
		}
		return notify.NewSESSender(sesClient, notify.SESConfig{
			FromEmail:        cfg.EmailFromAddress,
			FromName:         cfg.EmailFromName,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, logger)
	case "stub":
		return notify.NewStubEmailSender(logger)
	default:
		return nil
	}
}
