package types

import (
	"net/mail"
	"strings"
)

// IdentifierKind discriminates the contact address a magic link is bound to.
type IdentifierKind string

const (
	IdentifierEmail IdentifierKind = "email"
	IdentifierPhone IdentifierKind = "phone"
)

// Identifier is either an email address or a phone number, never both.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// EmailIdentifier builds an email identifier with a normalized address.
func EmailIdentifier(address string) Identifier {
	return Identifier{Kind: IdentifierEmail, Value: strings.ToLower(strings.TrimSpace(address))}
}

// PhoneIdentifier builds a phone identifier.
func PhoneIdentifier(number string) Identifier {
	return Identifier{Kind: IdentifierPhone, Value: strings.TrimSpace(number)}
}

// ParseIdentifier classifies a raw contact string. Anything that parses as a
// bare mail address is an email; every other non-empty value is treated as a
// phone number.
func ParseIdentifier(raw string) (Identifier, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Identifier{}, ErrIdentifierRequired
	}
	if isEmailAddress(value) {
		return EmailIdentifier(value), nil
	}
	return PhoneIdentifier(value), nil
}

func isEmailAddress(value string) bool {
	if !strings.Contains(value, "@") || strings.ContainsAny(value, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return false
	}
	return strings.EqualFold(addr.Address, value)
}

// IsZero reports whether the identifier is unset.
func (id Identifier) IsZero() bool {
	return id.Kind == "" || strings.TrimSpace(id.Value) == ""
}

// IsEmail reports whether the identifier is an email address.
func (id Identifier) IsEmail() bool {
	return id.Kind == IdentifierEmail
}

// IsPhone reports whether the identifier is a phone number.
func (id Identifier) IsPhone() bool {
	return id.Kind == IdentifierPhone
}

// Email returns the address for email identifiers, empty otherwise.
func (id Identifier) Email() string {
	if id.IsEmail() {
		return id.Value
	}
	return ""
}

// Phone returns the number for phone identifiers, empty otherwise.
func (id Identifier) Phone() string {
	if id.IsPhone() {
		return id.Value
	}
	return ""
}

// Capabilities lists the channels able to reach this identifier.
func (id Identifier) Capabilities() []Channel {
	switch id.Kind {
	case IdentifierEmail:
		return []Channel{ChannelMail}
	case IdentifierPhone:
		return []Channel{ChannelWhatsApp, ChannelSMS}
	default:
		return nil
	}
}

// Supports reports whether the channel can reach this identifier.
func (id Identifier) Supports(channel Channel) bool {
	for _, c := range id.Capabilities() {
		if c == channel {
			return true
		}
	}
	return false
}

func (id Identifier) String() string {
	return id.Value
}
