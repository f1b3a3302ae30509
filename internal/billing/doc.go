// Package billing handles subscription checkout and webhook events
// through Stripe.
//
// The Service creates hosted checkout sessions for subscription
// purchases and verifies incoming webhook signatures before acting on
// subscription lifecycle events. Stripe rejections are returned
// unmodified so the HTTP layer can relay the exact reason.
package billing
