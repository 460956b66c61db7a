package agent

import (
	"fmt"
	"strings"
)

const contextualActionSystemPrompt = `You are an AI agent navigating a vibe-coding platform to achieve specific project goals on behalf of a user.
Your task is to analyze the current state of the DOM and determine the single, most logical next action that advances the project goals.
You must ALWAYS base your decision on the DOM snapshot and the project goals you are given.
Respond with a single JSON object and nothing else.`

const contextualActionOutputSpec = `Respond in JSON format with the following fields:

*   "response": A short conversational message for the user describing what you are doing or, if nothing needs to be done, what you found.
*   "action": The action to take. One of "click", "type", "navigate", or "none" when no UI action is needed right now. Actions that delete, publish or deploy something must be named "delete", "publish" or "deploy".
*   "actionDetails": A JSON object with the details required to execute the action. For "click" include a "selector" key with a CSS selector. For "type" include "selector" and the "text" to type. For "navigate" include a "url".
*   "reasoning": Explain the detailed reasoning behind your action based on the project goals and the current DOM.`

func contextualActionPrompt(in PlannerInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are working on the %s platform for user %s on project %s.\n\n", in.Platform, in.UserID, in.ProjectID)
	sb.WriteString("1. The current DOM snapshot:\n----------\n")
	sb.WriteString(in.DOMSnapshot)
	sb.WriteString("\n----------\n\n2. The overall project goals:\n----------\n")
	sb.WriteString(in.ProjectGoals)
	sb.WriteString("\n----------\n\n")
	sb.WriteString("Based on the above information, what is the single, most logical next action to take? ")
	sb.WriteString("Consider actions such as clicking buttons, typing into input fields, or navigating to different pages.\n\n")
	sb.WriteString(contextualActionOutputSpec)
	return sb.String()
}

const chatNameSystemPrompt = `You are an AI assistant that creates short, descriptive titles for chat sessions.
Based on the user's first message, generate a concise name for the conversation. The name should be no more than 5 words.
Respond with a JSON object of the form {"name": "..."} and nothing else.`

func chatNamePrompt(message string) string {
	return fmt.Sprintf("User Message:\n----------\n%s\n----------", message)
}

const summarySystemPrompt = `You are an AI assistant summarizing the recent actions of a browser automation agent.
Summarize the logs you are given in a concise, one-sentence summary that captures the agent's progress.
Respond with a JSON object of the form {"summary": "..."} and nothing else.`

func summaryPrompt(logs string) string {
	return fmt.Sprintf("The agent has produced the following logs:\n%s", logs)
}

const projectPlanSystemPrompt = `You are an AI project planning assistant. Your goal is to create an actionable project plan based on the user's request and platform.
Break the project down into smaller, more manageable steps. Each step is one short imperative sentence.
Respond with a JSON object of the form {"steps": ["...", "..."]} and nothing else.`

func projectPlanPrompt(in ProjectPlanInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Platform: %s\nGoal: %s\n", in.Platform, in.Goal)
	if in.DOMSnapshot != "" {
		fmt.Fprintf(&sb, "Current DOM: %s\n", in.DOMSnapshot)
	}
	sb.WriteString("\nSteps:")
	return sb.String()
}
