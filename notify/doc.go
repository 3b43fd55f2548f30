// Package notify delivers account notifications (verification links,
// password resets, login and security alerts).
//
// Notifiers receive structured data only. Rendering and transport are the
// notifier's concern; the credential engine never builds message bodies.
//
// Implementations:
//
//   - SMTPNotifier sends multipart text/HTML mail through go-mail.
//   - LogNotifier writes one structured log line per notification.
//   - Outbox records notifications in memory for tests and examples.
package notify
