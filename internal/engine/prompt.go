package engine

import (
	"fmt"
	"strings"

	"github.com/synapsemind/backend/internal/model/discussion"
	"github.com/synapsemind/backend/internal/provider"
)

// historyLimit bounds how many transcript entries are replayed to a model.
const historyLimit = 10

// summaryPreviewLen bounds per-message previews in the closing summary.
const summaryPreviewLen = 100

func participantNames(participants []discussion.Provider) []string {
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		names = append(names, p.DisplayName)
	}
	return names
}

func kickoffMessage(topic string, participants []discussion.Provider, maxRounds int) string {
	return fmt.Sprintf(`Welcome to the multi-AI brainstorming session!

Topic: %s

Participating assistants: %s

Rules:
1. Each assistant takes turns sharing its view
2. Assistants may agree or disagree with points already made
3. The goal is to converge step by step on the best solution
4. The discussion runs for at most %d rounds

Let's begin!`, topic, strings.Join(participantNames(participants), ", "), maxRounds)
}

// buildContext assembles the bounded conversation sent to a provider: a
// system instruction followed by the most recent transcript entries, with
// assistant entries prefixed by the speaker's name so the model can tell
// the voices apart.
func buildContext(st *session, current discussion.Provider) []provider.Message {
	var others []string
	for _, p := range st.participants {
		if p.ID != current.ID {
			others = append(others, p.DisplayName)
		}
	}

	system := fmt.Sprintf(`You are %s, participating in a brainstorming session with other AI assistants.

Topic: %s

Guidelines:
1. Share your unique perspective on the topic
2. Respond to points made by other AI assistants if you agree or disagree
3. Be constructive and aim to build consensus
4. Keep your response concise (2-4 paragraphs)
5. Address other participants by name when responding to them
6. Aim to find common ground and work towards a unified solution

Other participants: %s

Current round: %d of %d`,
		current.DisplayName, st.topic, strings.Join(others, ", "), st.round(), st.maxRounds)

	messages := []provider.Message{{Role: "system", Content: system}}
	for _, e := range st.tail(historyLimit) {
		if e.role == discussion.RoleAssistant {
			messages = append(messages, provider.Message{
				Role:    "assistant",
				Content: fmt.Sprintf("[%s]: %s", e.speaker, e.content),
			})
			continue
		}
		messages = append(messages, provider.Message{Role: string(e.role), Content: e.content})
	}
	return messages
}

// buildSummary renders the deterministic closing summary of a session.
func buildSummary(st *session) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Discussion Summary\n\n")
	fmt.Fprintf(&b, "**Topic**: %s\n\n", st.topic)
	fmt.Fprintf(&b, "**Statistics**:\n")
	fmt.Fprintf(&b, "- Total rounds: %d\n", st.round())
	fmt.Fprintf(&b, "- Participants: %s\n", strings.Join(participantNames(st.participants), ", "))
	fmt.Fprintf(&b, "- Total messages: %d\n\n", st.messageCount())
	fmt.Fprintf(&b, "**Key positions**:\n")

	for _, p := range st.participants {
		spoken := st.bySpeaker(p.DisplayName, 3)
		if len(spoken) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n**%s**:\n", p.DisplayName)
		for i, e := range spoken {
			preview := e.content
			if r := []rune(preview); len(r) > summaryPreviewLen {
				preview = string(r[:summaryPreviewLen]) + "..."
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, preview)
		}
	}

	fmt.Fprintf(&b, "\n**Consensus level**: %.0f%%\n", finalConsensus)
	fmt.Fprintf(&b, "\nThanks to all participants for their contributions!")
	return b.String()
}
