package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	config "github.com/maheshrc27/postdispatch/configs"
)

// AlertService tells operators about problems that need a human.
type AlertService interface {
	Notify(ctx context.Context, subject, body string) error
}

type sesSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type sesAlertService struct {
	client sesSender
	from   string
	to     []string
}

// NewAlertService sends alerts through SES when alerting is configured and
// only logs them otherwise.
func NewAlertService(ctx context.Context, cfg config.Config) (AlertService, error) {
	if !cfg.AlertsEnabled() {
		return logAlertService{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Alerts.Region))
	if err != nil {
		return nil, fmt.Errorf("load ses config: %w", err)
	}
	return &sesAlertService{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.Alerts.From,
		to:     cfg.Alerts.Recipients,
	}, nil
}

func (s *sesAlertService) Notify(ctx context.Context, subject, body string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: s.to,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	return nil
}

type logAlertService struct{}

func (logAlertService) Notify(_ context.Context, subject, body string) error {
	slog.Warn("operator alert", "subject", subject, "body", body)
	return nil
}
