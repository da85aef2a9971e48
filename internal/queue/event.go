// Package queue carries confirmation-mail requests over RabbitMQ: the
// Publisher implements the authenticator's Notifier and the consumer drains
// the queue into the mail outbox.
package queue

// EmailConfirmationQueue is the durable queue confirmation requests go to.
const EmailConfirmationQueue = "auth.email_confirmation"

// EmailConfirmationRequested is published whenever a confirmation link is
// issued. It holds everything a mail sender needs without querying the
// identity store.
type EmailConfirmationRequested struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Link        string `json:"link"`
	RequestedAt string `json:"requested_at"`
}
