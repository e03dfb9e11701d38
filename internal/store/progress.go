package store

import "strings"

// Progress summarises the navigator.step events of one question.
type Progress struct {
	Steps      int            `json:"steps"`
	Searches   int            `json:"searches"`
	Fetches    int            `json:"fetches"`
	Hops       int            `json:"hops"`
	Backtracks int            `json:"backtracks"`
	PDFsFound  int            `json:"pdfs_found"`
	Failures   map[string]int `json:"failures"`
	LastState  string         `json:"last_state,omitempty"`
	LastURL    string         `json:"last_url,omitempty"`
	LastSeq    int64          `json:"last_seq"`
}

func BuildProgress(events []QuestionEvent) Progress {
	progress := Progress{Failures: map[string]int{}}
	for _, event := range events {
		progress = ApplyStepEvent(progress, event)
	}
	return progress
}

// ApplyStepEvent folds one event into progress. Events other than navigator.step only move LastSeq.
func ApplyStepEvent(progress Progress, event QuestionEvent) Progress {
	if progress.Failures == nil {
		progress.Failures = map[string]int{}
	}
	if event.Seq > progress.LastSeq {
		progress.LastSeq = event.Seq
	}
	if NormalizeEventType(event.Type) != "navigator.step" {
		return progress
	}
	state := strings.ToUpper(firstString(event.Payload, "state"))
	if state == "" {
		return progress
	}
	progress.LastState = state
	if url := firstString(event.Payload, "url"); url != "" {
		progress.LastURL = url
	}
	switch state {
	case "CHOOSE_QUERY_OR_URL":
		progress.Steps++
	case "SEARCH":
		progress.Searches++
	case "FETCH":
		progress.Fetches++
	case "RECURSE":
		progress.Hops++
	case "BACKTRACK_RETRY":
		progress.Backtracks++
	case "SUCCEED":
		progress.PDFsFound++
	case "FAIL":
		kind := firstString(event.Payload, "kind")
		if kind == "" {
			kind = "unknown"
		}
		progress.Failures[kind]++
	}
	return progress
}

func firstString(payload map[string]any, keys ...string) string {
	if payload == nil {
		return ""
	}
	for _, key := range keys {
		value, ok := payload[key]
		if !ok {
			continue
		}
		switch typed := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(typed); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func firstInt(payload map[string]any, keys ...string) int {
	if payload == nil {
		return 0
	}
	for _, key := range keys {
		value, ok := payload[key]
		if !ok {
			continue
		}
		switch typed := value.(type) {
		case int:
			return typed
		case int64:
			return int(typed)
		case float64:
			return int(typed)
		}
	}
	return 0
}

func firstBool(payload map[string]any, keys ...string) bool {
	if payload == nil {
		return false
	}
	for _, key := range keys {
		if value, ok := payload[key].(bool); ok {
			return value
		}
	}
	return false
}
