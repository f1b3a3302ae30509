// Package reply drafts email replies with an OpenAI chat model.
//
// The Drafter sends the incoming email to the configured model and
// returns the drafted reply text. Provider errors are returned
// unmodified so the HTTP layer can relay the exact reason.
package reply
