package research

import (
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/conversation"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/llm"
)

const (
	queryMarker       = "Search Query:"
	finalAnswerMarker = "FINAL ANSWER:"
	foundSoFarHeader  = "Information that was found so far (no need to look for it again):\n\n"
	moreResearch      = "DOING MORE RESEARCH..."

	finderHeaderTemplate = "Your name is {AGENT_ALIAS} and your job function is to use a search engine to find PDF " +
		"documents that are needed to answer the user's question. Here is the question:"

	finderInstruction = "Use the following format:\n" +
		"\n" +
		"Thought: you should always think out loud before you come up with a search query\n" +
		"Search Query: the query to use to search for the PDF document\n" +
		"\n" +
		"If you need to search for multiple PDF documents then just repeat \"Search Query:\" multiple times.\n" +
		"\n" +
		"NOTE #1: You are using a special search engine that already knows that you're looking for PDFs, so " +
		"you shouldn't include \"PDF\" or \"filetype:pdf\" or anything like that in your query.\n" +
		"NOTE #2: Do not try to search for any specific information that might be contained in the PDF, " +
		"just search for the PDF itself.\n" +
		"\n" +
		"Begin!\n" +
		"\n" +
		"Thought:"

	answerSystemPrompt = "You are a general AI assistant. I will ask you a question. Report your thoughts, and finish " +
		"your answer with the following template: FINAL ANSWER: [YOUR FINAL ANSWER].\n" +
		"YOUR FINAL ANSWER should be a number OR as few words as possible OR a comma separated list " +
		"of numbers and/or strings.\n" +
		"If you are asked for a number, don’t use comma to write your number neither use units such " +
		"as $ or percent sign unless specified otherwise.\n" +
		"If you are asked for a string, don’t use articles, neither abbreviations (e.g. for cities), " +
		"and write the digits in plain text unless specified otherwise.\n" +
		"If you are asked for a comma separated list, apply the above rules depending of whether the " +
		"element to be put in the list is a number or a string."

	answerContextIntro  = "In order to answer the question use the following info:"
	answerQuestionIntro = "HERE GOES THE QUESTION:"

	checkIntro = "Your job is to judge whether the user's question was answered or not. Here is the user's " +
		"question:"

	checkAnswerIntro = "And here is the answer:"

	checkInstruction = "Choose a single option that best describes what happened:\n" +
		"\n" +
		"1. The question was answered.\n" +
		"2. There was not enough information in the context to answer the question.\n" +
		"3. None of the above.\n" +
		"\n" +
		"Answer with a single number and no other text.\n" +
		"\n" +
		"ANSWER:"
)

// renderConversation renders a chain as "SENDER: content" blocks.
func renderConversation(chain []conversation.Node) string {
	parts := make([]string, 0, len(chain))
	for _, node := range chain {
		parts = append(parts, node.Sender+": "+strings.TrimSpace(node.Content))
	}
	return strings.Join(parts, "\n\n")
}

func finderPrompt(alias string, conversationText string) []llm.Message {
	return []llm.Message{
		llm.System(strings.ReplaceAll(finderHeaderTemplate, "{AGENT_ALIAS}", alias)),
		llm.User(conversationText),
		llm.System(finderInstruction),
	}
}

// ParseQueries extracts every "Search Query:" line. A query ends at the first blank line.
func ParseQueries(reply string) []string {
	parts := strings.Split(reply, queryMarker)
	if len(parts) < 2 {
		return nil
	}
	queries := make([]string, 0, len(parts)-1)
	for _, part := range parts[1:] {
		query := strings.TrimSpace(strings.SplitN(part, "\n\n", 2)[0])
		if query != "" {
			queries = append(queries, query)
		}
	}
	return queries
}

func answerPrompt(found []string, question string) []llm.Message {
	messages := make([]llm.Message, 0, len(found)+4)
	messages = append(messages, llm.System(answerSystemPrompt), llm.System(answerContextIntro))
	for _, text := range found {
		messages = append(messages, llm.User(text))
	}
	return append(messages, llm.System(answerQuestionIntro), llm.User(question))
}

func checkPrompt(question string, answer string) []llm.Message {
	return []llm.Message{
		llm.System(checkIntro),
		llm.User(question),
		llm.System(checkAnswerIntro),
		llm.Assistant(answer),
		llm.System(checkInstruction),
	}
}

// wasAnswered reads the first digit of the judge reply. Only "1" means answered.
func wasAnswered(reply string) bool {
	for _, r := range reply {
		if r >= '0' && r <= '9' {
			return r == '1'
		}
	}
	return false
}

// FinalAnswer returns the text after the first "FINAL ANSWER:" marker, or the whole text trimmed.
func FinalAnswer(text string) string {
	idx := strings.Index(text, finalAnswerMarker)
	if idx < 0 {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[idx+len(finalAnswerMarker):])
}
