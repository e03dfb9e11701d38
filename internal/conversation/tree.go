package conversation

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNodeNotFound = errors.New("conversation node not found")

type Kind string

const (
	KindQuery   Kind = "query"
	KindHop     Kind = "hop"
	KindResult  Kind = "result"
	KindFailure Kind = "failure"
	KindAnswer  Kind = "answer"
)

// Attributes is the fixed metadata schema attached to every node.
type Attributes struct {
	Kind        Kind   `json:"kind,omitempty"`
	Success     bool   `json:"success,omitempty"`
	PageURL     string `json:"page_url,omitempty"`
	PDFDigest   string `json:"pdf_digest,omitempty"`
	FailureKind string `json:"failure_kind,omitempty"`
	Depth       int    `json:"depth,omitempty"`
	Retries     int    `json:"retries,omitempty"`
}

type Node struct {
	ID            string     `json:"id"`
	ParentID      string     `json:"parent_id,omitempty"`
	BranchPointID string     `json:"branch_point_id,omitempty"`
	Sender        string     `json:"sender"`
	Content       string     `json:"content"`
	Attributes    Attributes `json:"attributes"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Tree is an append-only arena of nodes. Nodes are never mutated once added.
type Tree struct {
	mu        sync.RWMutex
	nodes     map[string]Node
	order     []string
	observers []func(Node)
	now       func() time.Time
}

func NewTree() *Tree {
	return &Tree{
		nodes: map[string]Node{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// OnAppend registers fn to be called after every new node, outside the tree lock.
func (t *Tree) OnAppend(fn func(Node)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

func (t *Tree) Root(sender string, content string, attrs Attributes) Node {
	node, _ := t.add("", "", sender, content, attrs)
	return node
}

func (t *Tree) Append(leafID string, sender string, content string, attrs Attributes) (Node, error) {
	return t.add(leafID, "", sender, content, attrs)
}

// Fork adds a child of fromID, recording fromID as the branch point.
func (t *Tree) Fork(fromID string, sender string, content string, attrs Attributes) (Node, error) {
	return t.add(fromID, fromID, sender, content, attrs)
}

func (t *Tree) add(parentID string, branchPointID string, sender string, content string, attrs Attributes) (Node, error) {
	t.mu.Lock()
	if parentID != "" {
		if _, ok := t.nodes[parentID]; !ok {
			t.mu.Unlock()
			return Node{}, ErrNodeNotFound
		}
	}
	node := Node{
		ID:            uuid.NewString(),
		ParentID:      parentID,
		BranchPointID: branchPointID,
		Sender:        sender,
		Content:       content,
		Attributes:    attrs,
		CreatedAt:     t.now(),
	}
	t.nodes[node.ID] = node
	t.order = append(t.order, node.ID)
	observers := append([]func(Node){}, t.observers...)
	t.mu.Unlock()

	for _, observer := range observers {
		observer(node)
	}
	return node, nil
}

func (t *Tree) Get(id string) (Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, ok := t.nodes[id]
	if !ok {
		return Node{}, ErrNodeNotFound
	}
	return node, nil
}

// Ancestors returns the chain from the root down to and including leafID.
func (t *Tree) Ancestors(leafID string) ([]Node, error) {
	leaf := strings.TrimSpace(leafID)
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.nodes[leaf]; !ok {
		return nil, ErrNodeNotFound
	}

	path := make([]Node, 0, 8)
	visited := map[string]struct{}{}
	current := leaf
	for current != "" {
		if _, seen := visited[current]; seen {
			break
		}
		visited[current] = struct{}{}
		node, ok := t.nodes[current]
		if !ok {
			break
		}
		path = append(path, node)
		current = node.ParentID
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Nodes returns every node in insertion order.
func (t *Tree) Nodes() []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	nodes := make([]Node, 0, len(t.order))
	for _, id := range t.order {
		nodes = append(nodes, t.nodes[id])
	}
	return nodes
}

func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}
