package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-magiclink/pkg/types"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingTransport struct {
	sent []Message
	err  error
}

func (r *recordingTransport) Send(_ context.Context, msg Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func newDispatcher(transports map[types.Channel]Transport) *Dispatcher {
	return NewDispatcher(Config{
		Transports: transports,
		Templates:  Templates{AppName: "Acme"},
		Clock:      fixedClock{t: baseTime},
	})
}

func TestDispatcher_EmailUsesMail(t *testing.T) {
	mail := &recordingTransport{}
	sms := &recordingTransport{}
	d := newDispatcher(map[types.Channel]Transport{
		types.ChannelMail: mail,
		types.ChannelSMS:  sms,
	})

	channels, err := d.Dispatch(context.Background(), types.LinkNotification{
		Identifier: types.EmailIdentifier("alice@example.com"),
		Guard:      "web",
		URL:        "https://app.test/auth/verify?token=abc",
		ExpiresAt:  baseTime.Add(15 * time.Minute),
	})
	require.NoError(t, err)
	require.Equal(t, []types.Channel{types.ChannelMail}, channels)
	require.Len(t, mail.sent, 1)
	require.Empty(t, sms.sent)

	msg := mail.sent[0]
	require.Equal(t, "alice@example.com", msg.To)
	require.Equal(t, DefaultMailSubject, msg.Subject)
	require.Contains(t, msg.Body, "https://app.test/auth/verify?token=abc")
	require.Contains(t, msg.Body, "15 minutes")
	require.Contains(t, msg.Body, "Acme")
}

func TestDispatcher_PhoneUsesWhatsAppThenSMS(t *testing.T) {
	whatsapp := &recordingTransport{}
	sms := &recordingTransport{}
	d := newDispatcher(map[types.Channel]Transport{
		types.ChannelWhatsApp: whatsapp,
		types.ChannelSMS:      sms,
	})

	channels, err := d.Dispatch(context.Background(), types.LinkNotification{
		Identifier: types.PhoneIdentifier("+15550001111"),
		URL:        "https://app.test/x",
		ExpiresAt:  baseTime.Add(10 * time.Minute),
	})
	require.NoError(t, err)
	require.Equal(t, []types.Channel{types.ChannelWhatsApp, types.ChannelSMS}, channels)
	require.Equal(t, "Your Acme login link: https://app.test/x (expires in 10 minutes)", sms.sent[0].Body)
	require.Equal(t, "Your login link for Acme\n\nClick here to login: https://app.test/x\n\nThis link will expire in 10 minutes.", whatsapp.sent[0].Body)
	require.Equal(t, "+15550001111", whatsapp.sent[0].To)
}

func TestDispatcher_OverrideFiltersUnsupportedChannels(t *testing.T) {
	mail := &recordingTransport{}
	sms := &recordingTransport{}
	d := newDispatcher(map[types.Channel]Transport{
		types.ChannelMail: mail,
		types.ChannelSMS:  sms,
	})

	channels := d.Resolve(types.PhoneIdentifier("+1555"), []types.Channel{"mail", "SMS", "sms"})
	require.Equal(t, []types.Channel{types.ChannelSMS}, channels)
}

func TestDispatcher_AvailabilityRestrictsChannels(t *testing.T) {
	d := NewDispatcher(Config{
		Transports: map[types.Channel]Transport{
			types.ChannelWhatsApp: &recordingTransport{},
			types.ChannelSMS:      &recordingTransport{},
		},
		Available: []types.Channel{types.ChannelSMS},
	})
	require.Equal(t, []types.Channel{types.ChannelSMS}, d.Resolve(types.PhoneIdentifier("+1555"), nil))
}

func TestDispatcher_NoChannelIsDeliveryFailure(t *testing.T) {
	d := newDispatcher(map[types.Channel]Transport{
		types.ChannelMail: &recordingTransport{},
	})
	_, err := d.Dispatch(context.Background(), types.LinkNotification{
		Identifier: types.PhoneIdentifier("+1555"),
	})
	require.ErrorIs(t, err, types.ErrDeliveryFailed)
	require.ErrorIs(t, err, types.ErrNoDeliveryChannel)
}

func TestDispatcher_TransportFailureStopsDelivery(t *testing.T) {
	boom := errors.New("gateway down")
	whatsapp := &recordingTransport{err: boom}
	sms := &recordingTransport{}
	d := newDispatcher(map[types.Channel]Transport{
		types.ChannelWhatsApp: whatsapp,
		types.ChannelSMS:      sms,
	})

	delivered, err := d.Dispatch(context.Background(), types.LinkNotification{
		Identifier: types.PhoneIdentifier("+1555"),
	})
	require.Empty(t, delivered)
	require.ErrorIs(t, err, types.ErrDeliveryFailed)
	require.ErrorIs(t, err, boom)

	var deliveryErr *types.DeliveryError
	require.True(t, errors.As(err, &deliveryErr))
	require.Equal(t, types.ChannelWhatsApp, deliveryErr.Channel)
	require.Empty(t, sms.sent)
}

type recordingPublisher struct {
	exchange string
	key      string
	msg      amqp091.Publishing
	err      error
}

func (p *recordingPublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	p.exchange = exchange
	p.key = key
	p.msg = msg
	return p.err
}

func TestQueueTransport_PublishesJSON(t *testing.T) {
	pub := &recordingPublisher{}
	transport, err := NewQueueTransport(QueueConfig{
		Publisher: pub,
		Queues:    map[types.Channel]string{types.ChannelWhatsApp: "whatsapp.outbound"},
	})
	require.NoError(t, err)

	err = transport.Send(context.Background(), Message{Channel: types.ChannelWhatsApp, To: "+1555", Body: "hi"})
	require.NoError(t, err)
	require.Equal(t, "whatsapp.outbound", pub.key)
	require.Equal(t, amqp091.Persistent, pub.msg.DeliveryMode)
	require.Equal(t, "application/json", pub.msg.ContentType)

	var decoded Message
	require.NoError(t, json.Unmarshal(pub.msg.Body, &decoded))
	require.Equal(t, "+1555", decoded.To)

	err = transport.Send(context.Background(), Message{Channel: types.ChannelSMS})
	require.Error(t, err)
}

func TestQueueTransport_WrapsPublishError(t *testing.T) {
	boom := errors.New("channel closed")
	transport, err := NewQueueTransport(QueueConfig{
		Publisher: &recordingPublisher{err: boom},
		Queues:    map[types.Channel]string{types.ChannelSMS: "sms.outbound"},
	})
	require.NoError(t, err)
	require.ErrorIs(t, transport.Send(context.Background(), Message{Channel: types.ChannelSMS}), boom)
}

func TestSMTPTransport_Send(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	transport, err := NewSMTPTransport(SMTPConfig{
		Host: "smtp.test",
		From: "login@acme.test",
		SendMail: func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
			gotAddr = addr
			gotTo = to
			gotMsg = string(msg)
			return nil
		},
	})
	require.NoError(t, err)

	err = transport.Send(context.Background(), Message{
		Channel: types.ChannelMail,
		To:      "alice@example.com",
		Subject: DefaultMailSubject,
		Body:    "click",
	})
	require.NoError(t, err)
	require.Equal(t, "smtp.test:587", gotAddr)
	require.Equal(t, []string{"alice@example.com"}, gotTo)
	require.True(t, strings.Contains(gotMsg, "Subject: "+DefaultMailSubject))

	require.Error(t, transport.Send(context.Background(), Message{Channel: types.ChannelSMS, To: "+1"}))
}

func TestLogTransport_WritesEntry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	transport := NewLogTransport(zap.New(core))

	require.NoError(t, transport.Send(context.Background(), Message{Channel: types.ChannelMail, To: "a@b.c"}))
	require.Equal(t, 1, logs.Len())
	require.Equal(t, "a@b.c", logs.All()[0].ContextMap()["to"])
}

func TestRender(t *testing.T) {
	require.Equal(t, "Acme https://x 5", Render(":app :url :minutes", "Acme", "https://x", 5))
}
