package notify

import (
	"strconv"
	"strings"

	"github.com/goliatone/go-magiclink/pkg/types"
)

const (
	DefaultAppName      = "App"
	DefaultMailSubject  = "Your Magic Login Link"
	DefaultMailTemplate = "Click the link below to log in to :app. This link will expire in :minutes minutes.\n\n:url\n\nIf you didn't request this login link, you can safely ignore this email."
	DefaultWhatsApp     = "Your login link for :app\n\nClick here to login: :url\n\nThis link will expire in :minutes minutes."
	DefaultSMS          = "Your :app login link: :url (expires in :minutes minutes)"
)

// Templates holds per-channel message bodies. Placeholders :app, :url and
// :minutes are substituted at render time.
type Templates struct {
	AppName     string
	MailSubject string
	Mail        string
	WhatsApp    string
	SMS         string
}

// DefaultTemplates returns the built-in copy.
func DefaultTemplates() Templates {
	return Templates{
		AppName:     DefaultAppName,
		MailSubject: DefaultMailSubject,
		Mail:        DefaultMailTemplate,
		WhatsApp:    DefaultWhatsApp,
		SMS:         DefaultSMS,
	}
}

func (t Templates) withDefaults() Templates {
	def := DefaultTemplates()
	if strings.TrimSpace(t.AppName) == "" {
		t.AppName = def.AppName
	}
	if strings.TrimSpace(t.MailSubject) == "" {
		t.MailSubject = def.MailSubject
	}
	if strings.TrimSpace(t.Mail) == "" {
		t.Mail = def.Mail
	}
	if strings.TrimSpace(t.WhatsApp) == "" {
		t.WhatsApp = def.WhatsApp
	}
	if strings.TrimSpace(t.SMS) == "" {
		t.SMS = def.SMS
	}
	return t
}

// Body renders the template for channel.
func (t Templates) Body(channel types.Channel, url string, minutes int) string {
	var tpl string
	switch channel {
	case types.ChannelMail:
		tpl = t.Mail
	case types.ChannelWhatsApp:
		tpl = t.WhatsApp
	case types.ChannelSMS:
		tpl = t.SMS
	}
	return Render(tpl, t.AppName, url, minutes)
}

// Render substitutes the :app, :url and :minutes placeholders.
func Render(tpl, app, url string, minutes int) string {
	return strings.NewReplacer(
		":app", app,
		":url", url,
		":minutes", strconv.Itoa(minutes),
	).Replace(tpl)
}
