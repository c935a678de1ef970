package generate

import (
	"fmt"
	"strings"
)

func answerPrompt(question string, contexts []string, language string) string {
	return fmt.Sprintf(`You are an assistant for question-answering tasks. Use the following pieces of retrieved context to answer the question. If you don't know the answer, just say that you don't know. Use three sentences maximum and keep the answer concise. Respond in %s.

Question: %s

Context:
%s`, LanguageName(language), question, joinContexts(contexts))
}

func digestPrompt(topic string, contexts []string, language string) string {
	return fmt.Sprintf(`You are a podcast script writer. Based on the provided context, write a short, engaging, and conversational podcast script about the topic: '%s'.
The script should have two distinct speakers, labeled "Speaker 1:" and "Speaker 2:".
The entire script should be around 150-200 words and feel natural.
Your entire output must be only the script content.
The script MUST be in %s.

Context:
%s

Topic: %s

Podcast Script:`, topic, LanguageName(language), joinContexts(contexts), topic)
}

func graphPrompt(topic string, contexts []string, language string) string {
	return fmt.Sprintf(`You are an AI assistant that generates mind maps in the Graphviz DOT language.
Based on the provided context, create a mind map for the topic: '%s'.
The mind map should have a central topic and several branching nodes with key ideas. Keep the text in nodes concise.
The text within the mind map nodes MUST be in %s.
Your entire output must be ONLY the DOT language code, enclosed in a single `+"```dot ... ```"+` block. Do not include any other text or explanation.

Example format:
`+"```dot"+`
digraph G {
    rankdir=LR;
    node [shape=box, style="rounded,filled", fillcolor=lightblue];
    "Central Topic" -> "Idea 1";
    "Central Topic" -> "Idea 2";
    "Idea 1" -> "Detail A";
}
`+"```"+`

Context:
%s

Topic: %s

DOT Language Output:`, topic, LanguageName(language), joinContexts(contexts), topic)
}

func joinContexts(contexts []string) string {
	if len(contexts) == 0 {
		return "(no documents retrieved)"
	}
	return strings.Join(contexts, "\n\n")
}
