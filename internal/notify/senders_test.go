package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubSES struct {
	input *ses.SendEmailInput
	err   error
}

func (client *stubSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	client.input = params
	if client.err != nil {
		return nil, client.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func sampleMessage() Message {
	return Message{ID: "m-1", Recipient: "guest@example.com", Subject: "Booking Confirmation - Lakeside Cabin", Body: "Your booking (ID: 7) for Lakeside Cabin has been confirmed!"}
}

func TestSESSenderBuildsRequest(test *testing.T) {
	test.Parallel()
	client := &stubSES{}
	sender, err := NewSESSender(client, "noreply@travelbook.example")
	require.NoError(test, err)

	require.NoError(test, sender.Send(context.Background(), sampleMessage()))
	require.NotNil(test, client.input)
	assert.Equal(test, "noreply@travelbook.example", aws.ToString(client.input.Source))
	assert.Equal(test, []string{"guest@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(test, "Booking Confirmation - Lakeside Cabin", aws.ToString(client.input.Message.Subject.Data))
	assert.Contains(test, aws.ToString(client.input.Message.Body.Text.Data), "has been confirmed")

	client.err = errors.New("throttled")
	require.Error(test, sender.Send(context.Background(), sampleMessage()))

	_, err = NewSESSender(nil, "noreply@travelbook.example")
	require.ErrorIs(test, err, ErrInvalidConfig)
}

func TestBuildMailMessage(test *testing.T) {
	test.Parallel()
	msg, err := buildMailMessage("noreply@travelbook.example", sampleMessage())
	require.NoError(test, err)

	recipients, err := msg.GetRecipients()
	require.NoError(test, err)
	assert.Equal(test, []string{"guest@example.com"}, recipients)
	assert.Equal(test, []string{"Booking Confirmation - Lakeside Cabin"}, msg.GetGenHeader(mail.HeaderSubject))

	invalid := sampleMessage()
	invalid.Recipient = "not an address"
	_, err = buildMailMessage("noreply@travelbook.example", invalid)
	require.ErrorIs(test, err, ErrInvalidMessage)
}

func TestNewSMTPSenderValidatesConfig(test *testing.T) {
	test.Parallel()
	_, err := NewSMTPSender(SMTPConfig{From: "noreply@travelbook.example"})
	require.ErrorIs(test, err, ErrInvalidConfig)
	_, err = NewSMTPSender(SMTPConfig{Host: "smtp.example.com"})
	require.ErrorIs(test, err, ErrInvalidConfig)

	sender, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Username: "user", Password: "secret", From: "noreply@travelbook.example"})
	require.NoError(test, err)
	assert.Equal(test, "noreply@travelbook.example", sender.from)
}

func TestLogSenderWritesEntry(test *testing.T) {
	test.Parallel()
	core, observed := observer.New(zap.InfoLevel)
	sender := NewLogSender(zap.New(core))

	require.NoError(test, sender.Send(context.Background(), sampleMessage()))
	entries := observed.FilterMessage("email").All()
	require.Len(test, entries, 1)
	assert.Equal(test, "guest@example.com", entries[0].ContextMap()["recipient"])
}

func TestRedisDeduperClaimsOnce(test *testing.T) {
	test.Parallel()
	client, mock := redismock.NewClientMock()
	deduper := NewRedisDeduper(client, 0, 0)
	key := "m-1:abcd"
	redisKey := defaultDedupePrefix + key

	mock.ExpectSetNX(redisKey, dedupeValuePending, defaultClaimTTL).SetVal(true)
	mock.ExpectSetNX(redisKey, dedupeValuePending, defaultClaimTTL).SetVal(false)
	mock.ExpectGet(redisKey).SetVal(dedupeValuePending)
	mock.ExpectSet(redisKey, dedupeValueSent, defaultDeliveredTTL).SetVal("OK")
	mock.ExpectSetNX(redisKey, dedupeValuePending, defaultClaimTTL).SetVal(false)
	mock.ExpectGet(redisKey).SetVal(dedupeValueSent)
	mock.ExpectDel(redisKey).SetVal(1)

	state, err := deduper.Claim(context.Background(), key)
	require.NoError(test, err)
	assert.Equal(test, ClaimAcquired, state)

	state, err = deduper.Claim(context.Background(), key)
	require.NoError(test, err)
	assert.Equal(test, ClaimInFlight, state)

	require.NoError(test, deduper.MarkDelivered(context.Background(), key))

	state, err = deduper.Claim(context.Background(), key)
	require.NoError(test, err)
	assert.Equal(test, ClaimDelivered, state)

	require.NoError(test, deduper.Release(context.Background(), key))
	require.NoError(test, mock.ExpectationsWereMet())
}

func TestRedisDeduperClaimExpiringBetweenCallsStaysQueued(test *testing.T) {
	test.Parallel()
	client, mock := redismock.NewClientMock()
	deduper := NewRedisDeduper(client, 45*time.Second, time.Hour)
	redisKey := defaultDedupePrefix + "m-2:beef"

	mock.ExpectSetNX(redisKey, dedupeValuePending, 45*time.Second).SetVal(false)
	mock.ExpectGet(redisKey).RedisNil()

	state, err := deduper.Claim(context.Background(), "m-2:beef")
	require.NoError(test, err)
	assert.Equal(test, ClaimInFlight, state)
	require.NoError(test, mock.ExpectationsWereMet())
}
