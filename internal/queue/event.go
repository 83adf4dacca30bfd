// Package queue defines message payloads exchanged over the message
// broker plus the background consumer that delivers them.
package queue

// EmailQueueName is the durable queue carrying outbound email requests.
const EmailQueueName = "email.send"

// EmailRequestedEvent is published when the auth flows need to deliver a
// message (password reset link, email validation link). The body embeds
// the raw token link, so events must never be logged verbatim.
type EmailRequestedEvent struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
