package navigator

import (
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/classify"
	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/conversation"
)

// CollectTriedURLs returns the URLs sender already attempted along chain.
func CollectTriedURLs(chain []conversation.Node, sender string) map[string]struct{} {
	tried := map[string]struct{}{}
	for _, node := range chain {
		if node.Sender != sender {
			continue
		}
		if content := strings.TrimSpace(node.Content); classify.IsValidURL(content) {
			tried[content] = struct{}{}
		}
		if pageURL := strings.TrimSpace(node.Attributes.PageURL); pageURL != "" {
			tried[pageURL] = struct{}{}
		}
	}
	return tried
}

// StripTriedLinks replaces markdown link targets pointing at tried URLs with "(#)".
func StripTriedLinks(text string, tried map[string]struct{}) string {
	if len(tried) == 0 || text == "" {
		return text
	}
	pairs := make([]string, 0, len(tried)*2)
	for link := range tried {
		pairs = append(pairs, "("+link+")", "(#)")
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
