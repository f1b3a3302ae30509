package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newGenerateDocsCmd() *cobra.Command {
	var (
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate HTTP API documentation",
		Long: `Generate markdown documentation for the HTTP API.
This command renders the route table the serve command exposes, in markdown
format, so the frontend team has an accurate endpoint reference.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// apiParam describes one input of an endpoint.
type apiParam struct {
	name        string
	in          string // "query", "body" or "header"
	required    bool
	description string
}

// apiEndpoint describes one route of the HTTP API.
type apiEndpoint struct {
	method      string
	path        string
	category    string
	description string
	params      []apiParam
	response    string
}

// apiEndpoints is the documented surface of the serve command. Keep it in
// step with the routes registered in internal/server.
var apiEndpoints = []apiEndpoint{
	{
		method:      "GET",
		path:        "/health",
		category:    "Health",
		description: "Basic health probe.",
		response:    `{"status": "ok"}`,
	},
	{
		method:      "GET",
		path:        "/healthz",
		category:    "Health",
		description: "Kubernetes liveness probe. Stays healthy during graceful shutdown so the pod is not restarted while draining.",
		response:    `{"status": "ok"}`,
	},
	{
		method:      "GET",
		path:        "/readyz",
		category:    "Health",
		description: "Kubernetes readiness probe. Returns 503 while starting up or shutting down so traffic is routed away.",
		response:    `{"status": "ok"}`,
	},
	{
		method:      "GET",
		path:        "/healthz/detailed",
		category:    "Health",
		description: "Health status with process uptime.",
		response:    `{"status": "ok", "uptime": "1h2m3s"}`,
	},
	{
		method:      "GET",
		path:        "/oauth/gmail/url",
		category:    "Gmail OAuth",
		description: "Build the Google consent URL that starts the Gmail connect flow.",
		params: []apiParam{
			{name: "subject", in: "query", description: "Account identifier the credential will be stored under (default: default)"},
		},
		response: `{"oauth_url": "https://accounts.google.com/o/oauth2/auth?..."}`,
	},
	{
		method:      "GET",
		path:        "/oauth/gmail/callback",
		category:    "Gmail OAuth",
		description: "Google redirects here after consent. Exchanges the authorization code, stores the credential and redirects the browser to the frontend dashboard.",
		params: []apiParam{
			{name: "code", in: "query", required: true, description: "Authorization code issued by Google"},
			{name: "state", in: "query", required: true, description: "State parameter issued by /oauth/gmail/url"},
		},
		response: "302 redirect to FRONTEND_URL/dashboard",
	},
	{
		method:      "GET",
		path:        "/connection-status",
		category:    "Gmail OAuth",
		description: "Report whether the subject has a usable Gmail credential. A credential whose refresh token was revoked reports not_connected.",
		params: []apiParam{
			{name: "subject", in: "query", description: "Account identifier (default: default)"},
		},
		response: `{"status": "connected"} or {"status": "not_connected"}`,
	},
	{
		method:      "DELETE",
		path:        "/oauth/gmail",
		category:    "Gmail OAuth",
		description: "Disconnect Gmail: revoke the credential with Google on a best-effort basis and delete it from storage. Disconnecting an unconnected subject succeeds.",
		params: []apiParam{
			{name: "subject", in: "query", description: "Account identifier (default: default)"},
		},
		response: `{"detail": "Gmail disconnected"}`,
	},
	{
		method:      "POST",
		path:        "/send-email",
		category:    "Mail",
		description: "Send an email through the connected Gmail account. The access token is refreshed first when it is within the safety margin of expiry.",
		params: []apiParam{
			{name: "subject", in: "query", description: "Account identifier (default: default)"},
			{name: "to", in: "body", required: true, description: "Recipient address"},
			{name: "subject", in: "body", required: true, description: "Message subject line"},
			{name: "body", in: "body", required: true, description: "Plain text message body"},
		},
		response: `{"detail": "Email sent!", "id": "gmail message id"}`,
	},
	{
		method:      "POST",
		path:        "/test-email",
		category:    "Mail",
		description: "Send a fixed test message to GMAIL_TEST_RECIPIENT to verify the connected account can send.",
		params: []apiParam{
			{name: "subject", in: "query", description: "Account identifier (default: default)"},
		},
		response: `{"detail": "Email sent!"}`,
	},
	{
		method:      "POST",
		path:        "/generate-reply",
		category:    "Drafting",
		description: "Draft a reply to an email with the configured language model.",
		params: []apiParam{
			{name: "sender_name", in: "body", description: "Name of the original sender"},
			{name: "email_text", in: "body", required: true, description: "Full text of the email to reply to"},
		},
		response: `{"reply": "drafted reply text"}`,
	},
	{
		method:      "POST",
		path:        "/stripe/create-checkout-session",
		category:    "Billing",
		description: "Create a Stripe Checkout session for a subscription price.",
		params: []apiParam{
			{name: "price_id", in: "body", required: true, description: "Stripe price identifier"},
			{name: "user_email", in: "body", description: "Prefilled customer email"},
		},
		response: `{"checkout_url": "https://checkout.stripe.com/..."}`,
	},
	{
		method:      "POST",
		path:        "/stripe/webhook",
		category:    "Billing",
		description: "Receive Stripe webhook events. The payload signature is verified against STRIPE_WEBHOOK_SECRET before the event is processed.",
		params: []apiParam{
			{name: "Stripe-Signature", in: "header", required: true, description: "Signature header set by Stripe"},
		},
		response: `{"status": "success"}`,
	},
}

func runGenerateDocs(outputFile string) error {
	markdown := generateAPIMarkdown(apiEndpoints)

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	} else {
		fmt.Print(markdown)
	}

	return nil
}

func generateAPIMarkdown(endpoints []apiEndpoint) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# HTTP API Reference\n\n")
	sb.WriteString("This document describes the endpoints the liquidmail backend exposes to the frontend.\n\n")
	sb.WriteString("**Note:** This documentation is generated with `liquidmail generate-docs`.\n\n")

	// Group endpoints by category
	endpointsByCategory := groupEndpointsByCategory(endpoints)

	// Table of contents
	sb.WriteString("## Table of Contents\n\n")
	categories := make([]string, 0, len(endpointsByCategory))
	for category := range endpointsByCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		anchor := strings.ToLower(strings.ReplaceAll(category, " ", "-"))
		sb.WriteString(fmt.Sprintf("- [%s](#%s)\n", category, anchor))
	}
	sb.WriteString("\n")

	// Error handling note
	sb.WriteString("## Errors\n\n")
	sb.WriteString("Failed requests return a JSON body of the form `{\"detail\": \"message\"}`:\n\n")
	sb.WriteString("- **400:** invalid input, or the subject has no connected Gmail account (reconnect required)\n")
	sb.WriteString("- **500:** a required provider is not configured on the server, or storage failed\n")
	sb.WriteString("- Provider rejections (Google, Stripe) are passed through in the detail message unchanged\n\n")

	// Multi-account note
	sb.WriteString("## Accounts\n\n")
	sb.WriteString("Gmail endpoints accept an optional `subject` query parameter naming the account the credential belongs to. ")
	sb.WriteString("Without it the `default` account is used, matching a single-user deployment.\n\n")

	// Generate documentation for each category
	for _, category := range categories {
		categoryEndpoints := endpointsByCategory[category]
		sort.SliceStable(categoryEndpoints, func(i, j int) bool {
			return categoryEndpoints[i].path < categoryEndpoints[j].path
		})

		sb.WriteString(fmt.Sprintf("## %s\n\n", category))

		for _, endpoint := range categoryEndpoints {
			sb.WriteString(generateEndpointMarkdown(endpoint))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func groupEndpointsByCategory(endpoints []apiEndpoint) map[string][]apiEndpoint {
	categories := make(map[string][]apiEndpoint)

	for _, endpoint := range endpoints {
		categories[endpoint.category] = append(categories[endpoint.category], endpoint)
	}

	return categories
}

func generateEndpointMarkdown(endpoint apiEndpoint) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### %s %s\n\n", endpoint.method, endpoint.path))

	if endpoint.description != "" {
		sb.WriteString(fmt.Sprintf("%s\n\n", endpoint.description))
	}

	if len(endpoint.params) > 0 {
		sb.WriteString("**Parameters:**\n")

		for _, param := range endpoint.params {
			requiredStr := "optional"
			if param.required {
				requiredStr = "required"
			}
			sb.WriteString(fmt.Sprintf("- `%s` (%s, %s): %s\n", param.name, param.in, requiredStr, param.description))
		}
		sb.WriteString("\n")
	}

	if endpoint.response != "" {
		sb.WriteString(fmt.Sprintf("**Response:** `%s`\n", endpoint.response))
	}

	return sb.String()
}
