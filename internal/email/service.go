package email

import (
	"fmt"
	"net/smtp"
	"time"
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

// SendDeliveryAlert notifies the buying party that a shipment arrived
func (s *Service) SendDeliveryAlert(to, orderID, shipmentID, location string, items []OrderItem) error {
	subject := fmt.Sprintf("Shipment delivered (order %s)", shortID(orderID))
	body := BuildDeliveryAlertBody(orderID, shipmentID, location, items)
	return s.send(to, subject, body)
}

// SendOverdueAlert notifies the buying party that a payment is overdue
func (s *Service) SendOverdueAlert(to, orderID string, amount int, dueAt time.Time) error {
	subject := fmt.Sprintf("Payment overdue (order %s)", shortID(orderID))
	body := BuildOverdueAlertBody(orderID, amount, dueAt)
	return s.send(to, subject, body)
}

// SendReturnApprovedAlert notifies the requesting party that a return cleared
func (s *Service) SendReturnApprovedAlert(to, returnID, orderID, sku string, quantity, refund int) error {
	subject := fmt.Sprintf("Return approved (order %s)", shortID(orderID))
	body := BuildReturnApprovedBody(returnID, orderID, sku, quantity, refund)
	return s.send(to, subject, body)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg))
}
