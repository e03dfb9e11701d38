package store

import (
	"time"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/conversation"
)

// TrailFromNodes flattens conversation nodes into archive rows, keeping their order.
func TrailFromNodes(questionID string, nodes []conversation.Node) []TrailNode {
	trail := make([]TrailNode, 0, len(nodes))
	for _, node := range nodes {
		createdAt := ""
		if !node.CreatedAt.IsZero() {
			createdAt = node.CreatedAt.UTC().Format(time.RFC3339Nano)
		}
		trail = append(trail, TrailNode{
			QuestionID:    questionID,
			ID:            node.ID,
			ParentID:      node.ParentID,
			BranchPointID: node.BranchPointID,
			Sender:        node.Sender,
			Content:       node.Content,
			Kind:          string(node.Attributes.Kind),
			Attributes:    attributesMap(node.Attributes),
			CreatedAt:     createdAt,
		})
	}
	return trail
}

func attributesMap(attrs conversation.Attributes) map[string]any {
	out := map[string]any{}
	if attrs.Success {
		out["success"] = true
	}
	if attrs.PageURL != "" {
		out["page_url"] = attrs.PageURL
	}
	if attrs.PDFDigest != "" {
		out["pdf_digest"] = attrs.PDFDigest
	}
	if attrs.FailureKind != "" {
		out["failure_kind"] = attrs.FailureKind
	}
	if attrs.Depth != 0 {
		out["depth"] = attrs.Depth
	}
	if attrs.Retries != 0 {
		out["retries"] = attrs.Retries
	}
	return out
}
