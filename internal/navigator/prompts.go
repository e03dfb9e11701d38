package navigator

import (
	"encoding/json"
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/classify"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/conversation"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/search"
)

const (
	searchHeaderTemplate = "Your name is {AGENT_ALIAS}. You will be provided with a JSON list of search results " +
		"for a given user query. The user is looking for a PDF document. Your job is to extract a URL that, in your " +
		"opinion, is the most likely to contain the PDF document the user is looking for."
	pageHeaderTemplate = "Your name is {AGENT_ALIAS}. You will be provided with the content of a web page that was " +
		"found via web search with a given user query. The user is looking for a PDF document. Your job is to " +
		"extract from this web page a URL that, in your opinion, is the most likely to lead to the PDF document " +
		"the user is looking for."
	trailHeader      = "BELOW ARE THE STEPS THAT WERE TRIED SO FAR\n=====\n\n"
	urlInstruction   = "PLEASE ONLY RETURN A URL AND NO OTHER TEXT. MAKE SURE NOT TO RETURN THE URLS THAT WERE ALREADY TRIED.\n\nURL:"
	userLabel        = "USER"
	navigateToSuffix = " - NAVIGATE TO"
	resultSuffix     = " - RESULT"
)

func searchHeader(alias string) string {
	return strings.ReplaceAll(searchHeaderTemplate, "{AGENT_ALIAS}", alias)
}

func pageHeader(alias string) string {
	return strings.ReplaceAll(pageHeaderTemplate, "{AGENT_ALIAS}", alias)
}

func searchContext(results []search.Result) string {
	if results == nil {
		results = []search.Result{}
	}
	encoded, err := json.Marshal(results)
	if err != nil {
		encoded = []byte("[]")
	}
	return "SEARCH RESULTS: " + string(encoded)
}

func pageContext(pageURL string, markdown string) string {
	return "BELOW IS THE CONTENT OF A WEB PAGE FOUND AT " + pageURL + "\n=====\n\n" + markdown
}

// renderTrail labels the navigator's own nodes as hops or results and everything else as USER.
func renderTrail(chain []conversation.Node, alias string) string {
	parts := make([]string, 0, len(chain))
	for _, node := range chain {
		content := strings.TrimSpace(node.Content)
		label := userLabel
		if node.Sender == alias {
			if classify.IsValidURL(content) {
				label = alias + navigateToSuffix
			} else {
				label = alias + resultSuffix
			}
		}
		parts = append(parts, label+": "+content)
	}
	return trailHeader + strings.Join(parts, "\n\n")
}

// renderUserRequest renders only the nodes that did not come from the navigator.
func renderUserRequest(chain []conversation.Node, alias string) string {
	parts := make([]string, 0, len(chain))
	for _, node := range chain {
		if node.Sender == alias {
			continue
		}
		parts = append(parts, userLabel+": "+strings.TrimSpace(node.Content))
	}
	return strings.Join(parts, "\n\n")
}

func nextURLPrompt(header string, trail string, context string) []llm.Message {
	return []llm.Message{
		llm.System(header),
		llm.User(trail),
		llm.User(context),
		llm.System(urlInstruction),
	}
}
