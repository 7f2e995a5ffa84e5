package email

import (
	"fmt"
	"net/smtp"
)

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
	}
}

// SendChargeExpired notifies ops that a charge ran out of retries
func (s *Service) SendChargeExpired(to, chargeID, externalKey, reason string, amountInCents int64, currency string) error {
	subject := fmt.Sprintf("[Action required] Charge %s expired", shortKey(chargeID))
	body := BuildChargeExpiredBody(chargeID, externalKey, reason, amountInCents, currency)
	return s.send(to, subject, body)
}

// SendCreationRevoked notifies ops that a client application creation was
// rolled back
func (s *Service) SendCreationRevoked(to, applicationID, externalKey, reason string) error {
	subject := fmt.Sprintf("Client application %s creation revoked", shortKey(applicationID))
	body := BuildCreationRevokedBody(applicationID, externalKey, reason)
	return s.send(to, subject, body)
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg))
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
