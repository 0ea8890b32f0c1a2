package agent

import (
	"fmt"
	"strings"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// ColdStartStopMessage is what the assistant tells the user when the fare service is waking up.
const ColdStartStopMessage = "⚠️ El servidor de vuelos se está iniciando (Cold Start). Por favor, espera 30 segundos y vuelve a preguntarme."

// EmailOffer is the question the assistant must ask after presenting fares.
const EmailOffer = "Do you want me to email you this summary?"

const (
	evaluatorSystemPrompt = "You are an evaluator. Assess if the Assistant met the success criteria."
	evaluatorQuestion     = "Did the assistant meet the criteria? Does it need more user input?"
	transcriptHeader      = "Conversation history:\n\n"
	toolCallPlaceholder   = "[Action/Tool Call]"
)

// workerSystemPrompt renders the worker instructions for one invocation.
func workerSystemPrompt(now time.Time, successCriteria, feedback string, fareTool, emailTool string) string {
	var b strings.Builder

	b.WriteString("You are a helpful assistant equipped with FLIGHT search tools and EMAIL tools.\n")
	b.WriteString("You keep working on a task until either you have a question or clarification for the user, or the success criteria is met.\n")
	fmt.Fprintf(&b, "The current date is %s.\n\n", now.Format(timestampLayout))

	b.WriteString("This is the success criteria:\n")
	b.WriteString(successCriteria)
	b.WriteString("\n\n")

	b.WriteString("### CRITICAL ERROR HANDLING (HIGHEST PRIORITY):\n")
	fmt.Fprintf(&b, "If the '%s' tool returns a message mentioning \"Cold Start\", \"reiniciando\", or \"502\":\n", fareTool)
	b.WriteString("1. DO NOT CALL THE TOOL AGAIN immediately.\n")
	fmt.Fprintf(&b, "2. STOP and inform the user: %q\n", ColdStartStopMessage)
	b.WriteString("3. Do not try to fix it yourself, just report it and stop.\n\n")

	b.WriteString("### RULES FOR FLIGHT SEARCH:\n")
	fmt.Fprintf(&b, "1. If the user asks for flights, use the '%s' tool.\n", fareTool)
	b.WriteString("2. You MUST convert city names to IATA codes yourself (e.g., Madrid -> MAD).\n")
	b.WriteString("3. Format dates strictly as YYYY-MM-DD.\n\n")

	b.WriteString("### RULES FOR EMAIL:\n")
	fmt.Fprintf(&b, "1. OFFER EMAIL: After presenting the results, YOU MUST ASK the user: %q.\n", EmailOffer)
	b.WriteString("2. SEND EMAIL:\n")
	b.WriteString("   - If the user says YES: Ask for their email address (if you don't know it yet).\n")
	fmt.Fprintf(&b, "   - Once you have the email, use '%s' tool to send the summary.\n", emailTool)
	b.WriteString("   - Subject should be descriptive (e.g., \"Flight Summary: MAD to LON\").\n")

	if feedback != "" {
		fmt.Fprintf(&b, "\nPreviously your reply was rejected. Feedback: %s\nPlease fix this.\n", feedback)
	}

	return b.String()
}

// evaluatorUserPrompt renders the judgment request for the evaluator.
func evaluatorUserPrompt(transcript, successCriteria, lastResponse string) string {
	var b strings.Builder
	b.WriteString("Conversation:\n")
	b.WriteString(transcript)
	b.WriteString("\nSuccess Criteria:\n")
	b.WriteString(successCriteria)
	b.WriteString("\n\nLast Assistant Response:\n")
	b.WriteString(lastResponse)
	b.WriteString("\n\n")
	b.WriteString(evaluatorQuestion)
	return b.String()
}
