package alert

import (
	"os"
	"time"
)

// Severity classifies a notification for routing on the receiving side.
type Severity string

const (
	SeverityInfo   Severity = "info"
	SeverityUrgent Severity = "urgent"
)

// Message is a human-readable notification. Subject and Body are always
// non-empty; Body permits lightweight markdown emphasis. Every message
// carries its creation time and originating host for traceability.
type Message struct {
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	Severity Severity  `json:"severity"`
	Time     time.Time `json:"time"`
	Host     string    `json:"host"`
}

// New builds a message stamped with the current time and hostname.
func New(severity Severity, subject, body string) Message {
	if subject == "" {
		subject = "(no subject)"
	}
	if body == "" {
		body = subject
	}
	host, _ := os.Hostname()
	return Message{
		Subject:  subject,
		Body:     body,
		Severity: severity,
		Time:     time.Now(),
		Host:     host,
	}
}

func Info(subject, body string) Message   { return New(SeverityInfo, subject, body) }
func Urgent(subject, body string) Message { return New(SeverityUrgent, subject, body) }
