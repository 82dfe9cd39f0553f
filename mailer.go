package account

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// RouteURLBuilder builds absolute confirmation and reset URLs from a base URL
type RouteURLBuilder struct {
	base string
}

func NewRouteURLBuilder(base string) RouteURLBuilder {
	return RouteURLBuilder{base: strings.TrimRight(base, "/")}
}

func (b RouteURLBuilder) ConfirmAccountURL(token string) string {
	return b.tokenURL("/confirmar-cuenta", token)
}

func (b RouteURLBuilder) ResetPasswordURL(token string) string {
	return b.tokenURL("/restablecer-contrasena", token)
}

func (b RouteURLBuilder) tokenURL(path, token string) string {
	q := url.Values{}
	q.Set("token", token)
	return b.base + path + "?" + q.Encode()
}

var _ URLBuilder = RouteURLBuilder{}

// LogMailer prints lifecycle notifications to stdout rather than delivering
// them. It is the default mailer for local development.
type LogMailer struct {
	urls URLBuilder
}

func NewLogMailer(urls URLBuilder) LogMailer {
	if urls == nil {
		urls = NewRouteURLBuilder("http://localhost:3000")
	}
	return LogMailer{urls: urls}
}

func (m LogMailer) SendConfirmation(ctx context.Context, to, token, name string) error {
	printEmailNotification(to, "Confirma tu cuenta", m.urls.ConfirmAccountURL(token))
	return nil
}

func (m LogMailer) SendPasswordReset(ctx context.Context, to, token, name string) error {
	printEmailNotification(to, "Restablece tu contraseña", m.urls.ResetPasswordURL(token))
	return nil
}

var _ Mailer = LogMailer{}

func printEmailNotification(email, subject, link string) {
	fmt.Println("====== SENDING EMAIL NOTIFICATION =======")
	fmt.Printf("to: %s\n", email)
	fmt.Printf("subject: %s\n", subject)
	fmt.Printf("link: %s\n", link)
}
