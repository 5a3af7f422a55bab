package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"math"
	texttemplate "text/template"

	"github.com/wneessen/go-mail"
)

//go:embed templates/*
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
)

var subjects = map[Kind]string{
	KindRegistration:  "Your Verification Code",
	KindPasswordReset: "Your Password Reset Code",
}

type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

type templateData struct {
	Name    string
	Code    string
	Minutes int
}

// Render produces the subject and both bodies for m.
func Render(m Message) (*Rendered, error) {
	subject, ok := subjects[m.Kind]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, m.Kind)
	}

	data := templateData{
		Name:    m.Name,
		Code:    m.Code,
		Minutes: int(math.Ceil(m.ExpiresIn.Minutes())),
	}

	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, string(m.Kind)+".html", data); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	if err := textTemplates.ExecuteTemplate(&text, string(m.Kind)+".txt", data); err != nil {
		return nil, fmt.Errorf("render text: %w", err)
	}

	return &Rendered{Subject: subject, HTML: html.String(), Text: text.String()}, nil
}

// Compose builds the RFC 822 message for m, ready to send or archive.
func Compose(from string, m Message) (*mail.Msg, error) {
	r, err := Render(m)
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(r.Subject)
	msg.SetGenHeader(mail.Header(ContextHeader), string(m.Kind))
	msg.SetMessageID()
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, r.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, r.HTML)
	return msg, nil
}
