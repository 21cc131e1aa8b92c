package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

const defaultSMTPPort = 587

// SMTPConfig describes the outbound mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers messages through go-mail.
type SMTPSender struct {
	client *mail.Client
	from   string
}

// NewSMTPSender dials lazily; the relay is contacted on each Send.
func NewSMTPSender(config SMTPConfig) (*SMTPSender, error) {
	host := strings.TrimSpace(config.Host)
	if host == "" {
		return nil, fmt.Errorf("%w: smtp host required", ErrInvalidConfig)
	}
	if strings.TrimSpace(config.From) == "" {
		return nil, fmt.Errorf("%w: from address required", ErrInvalidConfig)
	}
	port := config.Port
	if port <= 0 {
		port = defaultSMTPPort
	}
	options := []mail.Option{mail.WithPort(port)}
	if config.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}
	client, err := mail.NewClient(host, options...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &SMTPSender{client: client, from: config.From}, nil
}

func (sender *SMTPSender) Send(ctx context.Context, message Message) error {
	msg, err := buildMailMessage(sender.from, message)
	if err != nil {
		return err
	}
	return sender.client.DialAndSendWithContext(ctx, msg)
}

func buildMailMessage(from string, message Message) (*mail.Msg, error) {
	if err := message.Validate(); err != nil {
		return nil, err
	}
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("%w: from: %v", ErrInvalidMessage, err)
	}
	if err := msg.To(message.Recipient); err != nil {
		return nil, fmt.Errorf("%w: recipient: %v", ErrInvalidMessage, err)
	}
	msg.Subject(message.Subject)
	msg.SetBodyString(mail.TypeTextPlain, message.Body)
	return msg, nil
}

// SESAPI is the subset of the SES client used for delivery.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender delivers messages through Amazon SES.
type SESSender struct {
	client SESAPI
	from   string
}

func NewSESSender(client SESAPI, from string) (*SESSender, error) {
	if client == nil || strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("%w: ses client and from address required", ErrInvalidConfig)
	}
	return &SESSender{client: client, from: from}, nil
}

func (sender *SESSender) Send(ctx context.Context, message Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	_, err := sender.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(sender.from),
		Destination: &sestypes.Destination{ToAddresses: []string{message.Recipient}},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(message.Subject), Charset: aws.String("UTF-8")},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(message.Body), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. Used in development.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (sender *LogSender) Send(_ context.Context, message Message) error {
	sender.logger.Info("email",
		zap.String("message_id", message.ID),
		zap.String("recipient", message.Recipient),
		zap.String("subject", message.Subject),
		zap.String("body", message.Body),
	)
	return nil
}
