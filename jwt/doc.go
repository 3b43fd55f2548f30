// Package jwt signs and verifies short-lived MFA challenge tickets.
//
// A ticket proves that the password step of a login succeeded. It carries
// the account id and a unique ticket id (jti); single use and the attempt
// cap are enforced by the server-side challenge record, not by the ticket.
package jwt
