package summarize

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an expert meeting summarizer. Your task is to create clear, actionable summaries from meeting transcripts.

Guidelines:
- Focus on key decisions, action items, and important discussions
- Use bullet points for clarity
- Highlight any deadlines or assignments mentioned
- Keep the summary concise but comprehensive
- Pay special attention to sections marked as [IMPORTANT START]...[IMPORTANT END]
- If the transcript contains important markers, ensure those topics are prominently featured`

const defaultTemplate = `Please summarize the following meeting transcript. Pay special attention to any sections marked with [IMPORTANT START] and [IMPORTANT END] tags - these indicate topics that were flagged as particularly important during the meeting.

TRANSCRIPT:
%s

Please provide:
1. **Executive Summary** (2-3 sentences)
2. **Key Discussion Points** (bullet points)
3. **Decisions Made** (if any)
4. **Action Items** (with assignees if mentioned)
5. **Important Highlights** (from marked sections)
6. **Next Steps** (if discussed)`

const quickTemplate = `Summarize this meeting transcript in 3-5 bullet points, focusing on the most important outcomes:

%s`

const actionItemsTemplate = `Extract all action items and tasks from this meeting transcript. For each item, identify:
- The task description
- Who is responsible (if mentioned)
- Any deadline (if mentioned)

TRANSCRIPT:
%s`

const decisionsTemplate = `Extract all decisions made during this meeting. For each decision, note:
- What was decided
- The context/reasoning (if discussed)
- Any conditions or caveats

TRANSCRIPT:
%s`

// TemplateInfo describes one summary template for API discovery and
// export filenames.
type TemplateInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Templates lists the available prompt templates
var Templates = map[string]TemplateInfo{
	"default":      {Name: "Meeting", Description: "Full structured meeting summary"},
	"quick":        {Name: "Quick", Description: "3-5 bullet points of key outcomes"},
	"action_items": {Name: "Action Items", Description: "Extracted tasks with owners and deadlines"},
	"decisions":    {Name: "Decisions", Description: "Decision log with context"},
	"custom":       {Name: "Custom", Description: "Default summary with custom instructions"},
}

// TemplateLabel returns the display label used in export filenames.
// Unknown template names fall back to a title-cased form.
func TemplateLabel(promptType string) string {
	if info, ok := Templates[promptType]; ok {
		return info.Name
	}
	if promptType == "" {
		return Templates["default"].Name
	}
	return strings.ToUpper(promptType[:1]) + promptType[1:]
}

// BuildPrompt returns the system and user prompts for a template.
// customInstructions, when set, are appended to the user prompt.
func BuildPrompt(promptType, transcript, customInstructions string) (string, string) {
	var template string
	switch promptType {
	case "quick":
		template = quickTemplate
	case "action_items":
		template = actionItemsTemplate
	case "decisions":
		template = decisionsTemplate
	default:
		template = defaultTemplate
	}

	userPrompt := fmt.Sprintf(template, transcript)
	if customInstructions != "" {
		userPrompt += "\n\nAdditional instructions: " + customInstructions
	}

	return systemPrompt, userPrompt
}
