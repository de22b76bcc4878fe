// Package prompt builds the system and user messages sent to the language
// model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/perbu/ragchat/pkg/knowledge"
)

// Prompt is the message pair for one completion.
type Prompt struct {
	System string
	User   string
}

// Assembler renders prompts for a persona speaking for an organization.
type Assembler struct {
	AssistantName string // e.g. Amal
	Organization  string // e.g. An-Nisa Hope Center
	SiteName      string // e.g. annisa.org
}

// Build renders the prompt for query grounded in results. The output depends
// only on its inputs.
func (a Assembler) Build(query string, results []knowledge.Result) Prompt {
	return Prompt{
		System: a.system(),
		User:   a.user(query, results),
	}
}

func (a Assembler) system() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a compassionate assistant for %s.\n", a.AssistantName, a.Organization)
	fmt.Fprintf(&b, "You answer questions based only on the provided context from the %s website.\n\n", a.SiteName)
	b.WriteString("Guidelines:\n")
	b.WriteString("- Only use information from the provided context\n")
	b.WriteString("- If you can't answer based on the context, say so politely and suggest visiting ")
	fmt.Fprintf(&b, "%s or contacting the organization directly\n", a.SiteName)
	fmt.Fprintf(&b, "- When relevant, include specific page links naturally within your response (e.g., \"You can learn more at https://%s/services\")\n", a.SiteName)
	b.WriteString("- Be helpful, caring, and informative\n")
	b.WriteString("- Keep responses warm but concise\n")
	b.WriteString("- Don't mention \"based on the context\" - just answer conversationally\n")
	fmt.Fprintf(&b, "- Speak in first person as %s\n", a.AssistantName)
	b.WriteString("- Be very caring and compassionate, emphasize hope\n")
	return b.String()
}

func (a Assembler) user(query string, results []knowledge.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Context from %s:\n", a.SiteName)
	for _, r := range results {
		fmt.Fprintf(&b, "Content: %s\n", r.Content)
		fmt.Fprintf(&b, "Source: %s\n\n", r.Metadata.SourceURL)
	}
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	fmt.Fprintf(&b, "Please answer as %s, including any relevant page URLs naturally in your response when they would be helpful to the person asking.", a.AssistantName)
	return b.String()
}
