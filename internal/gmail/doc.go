// Package gmail sends mail through the Gmail API on behalf of a
// connected account.
//
// The Dispatcher builds an RFC 2822 message, encodes it for the Gmail
// API and submits it with a caller-supplied access token. It holds no
// credentials of its own; every send receives a fresh token from the
// token manager. Provider rejections are returned unmodified so the
// HTTP layer can relay the exact reason to the client.
package gmail
