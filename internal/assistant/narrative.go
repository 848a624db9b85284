package assistant

import (
	"regexp"
	"strings"

	"github.com/Todor-5rov/Vexcel/internal/ai"
	"github.com/Todor-5rov/Vexcel/internal/sync"
)

// minNarrative is the shortest model answer used as is.
const minNarrative = 50

var suggestions = []string{
	"Would you like me to create a summary of the changes?",
	"Should I generate a chart to visualize this data?",
	"Would you like to perform any additional analysis?",
	"Need me to export this data in a different format?",
}

var (
	reFence  = regexp.MustCompile("```[\\w]*\\n?")
	reBold   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	reItalic = regexp.MustCompile(`\*(.*?)\*`)
	reCode   = regexp.MustCompile("`([^`]+)`")
)

func (a *Assistant) narrate(filename string, res *ai.MutationResult, modified bool, syncRes sync.Result) string {
	text := res.Text
	for _, c := range res.ToolCalls {
		if c.Error != "" {
			text += "\n\n❌ I encountered an issue: " + c.Error
		}
	}

	if len(strings.TrimSpace(text)) < minNarrative {
		text = summarize(filename, res.ToolCalls, modified)
	}
	text = stripMarkdown(text)

	if modified {
		text += "\n\n✅ Your Excel file has been updated successfully! You can see the changes in the viewer on the right."
		text += "\n\n💡 " + suggestions[a.cfg.Pick(len(suggestions))]
	}
	if !syncRes.Success {
		text += "\n\n⚠️ " + staleNote(syncRes)
	}
	return strings.TrimSpace(text)
}

// summarize describes the tool calls when the model gave no usable answer.
func summarize(filename string, calls []ai.ToolCall, modified bool) string {
	if len(calls) == 0 {
		return "I processed your request, but I'm not sure what specific action was taken. Could you please try rephrasing your request or be more specific about what you'd like me to do?"
	}

	phrases := make([]string, 0, len(calls))
	for _, c := range calls {
		phrases = append(phrases, ai.Describe(c.Name))
	}

	var b strings.Builder
	b.WriteString("I successfully ")
	b.WriteString(strings.Join(phrases, ", "))
	b.WriteString(` on your Excel file "`)
	b.WriteString(filename)
	b.WriteString(`". `)
	if modified {
		b.WriteString("The changes have been applied and your file has been updated. ")
	}
	b.WriteString("Is there anything else you'd like me to do with your data?")
	return b.String()
}

func stripMarkdown(s string) string {
	s = reFence.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")
	s = reBold.ReplaceAllString(s, "$1")
	s = reItalic.ReplaceAllString(s, "$1")
	s = reCode.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

func staleNote(res sync.Result) string {
	note := "The viewer may show an older version of the file because OneDrive could not be updated."
	if res.Message != "" {
		note += " (" + res.Message + ")"
	}
	return note
}
