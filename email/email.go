package email

import (
	"fmt"
	"net/smtp"
	"os"
	"time"
)

// EmailService delivers access tokens over SMTP. It is the production
// implementation of the token store's Deliverer.
type EmailService struct {
	host     string
	port     string
	user     string
	password string
	from     string
}

func NewEmailService() *EmailService {
	return &EmailService{
		host:     os.Getenv("SMTP_HOST"),
		port:     os.Getenv("SMTP_PORT"),
		user:     os.Getenv("SMTP_USER"),
		password: os.Getenv("SMTP_PASSWORD"),
		from:     os.Getenv("SMTP_FROM"),
	}
}

// SendToken emails a signup or signin link carrying the access token.
// Returns whether the send succeeded and, when it did, the send time.
func (e *EmailService) SendToken(to string, signup bool, token string) (bool, *time.Time) {
	domain := os.Getenv("DOMAIN")
	if domain == "" {
		domain = "http://localhost:8080"
	}

	var subject, operation string
	if signup {
		subject = "Finish creating your account"
		operation = "register"
	} else {
		subject = "Sign in"
		operation = "login"
	}

	callback := fmt.Sprintf("%s/callback/email?token=%s&operation=%s", domain, token, operation)

	body := fmt.Sprintf(`Hello!

Click the link below to continue:

%s

If you did not request this email, you can safely ignore it.
`, callback)

	message := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", e.from, to, subject, body)

	auth := smtp.PlainAuth("", e.user, e.password, e.host)
	addr := fmt.Sprintf("%s:%s", e.host, e.port)

	if err := smtp.SendMail(addr, auth, e.from, []string{to}, []byte(message)); err != nil {
		return false, nil
	}

	sentAt := time.Now()
	return true, &sentAt
}
