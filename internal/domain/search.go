package domain

import "time"

type SourceKind string

const (
	SourceKindContentAPI   SourceKind = "content-api"
	SourceKindMediaServer  SourceKind = "media-server"
	SourceKindLocalCatalog SourceKind = "local-catalog"
)

type ResultItem struct {
	ID            string   `json:"id"`
	Source        string   `json:"source"`
	SourceName    string   `json:"sourceName"`
	Title         string   `json:"title"`
	PosterURL     string   `json:"poster,omitempty"`
	Year          string   `json:"year,omitempty"`
	Description   string   `json:"description,omitempty"`
	TypeName      string   `json:"typeName,omitempty"`
	Episodes      []string `json:"episodes"`
	EpisodeTitles []string `json:"episodeTitles"`
	ExternalRefID int      `json:"externalRefId,omitempty"`
}

// ResultBatch is what every source contributes to a search, including the
// empty batch of a source that failed.
type ResultBatch struct {
	Source     string       `json:"source"`
	SourceName string       `json:"sourceName"`
	Results    []ResultItem `json:"results"`
}

func EmptyBatch(source, sourceName string) ResultBatch {
	return ResultBatch{Source: source, SourceName: sourceName, Results: []ResultItem{}}
}

type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type SearchResponse struct {
	Results []ResultItem `json:"results"`
}

type StreamEventType string

const (
	StreamEventStart        StreamEventType = "start"
	StreamEventSourceResult StreamEventType = "source_result"
	StreamEventSourceError  StreamEventType = "source_error"
	StreamEventComplete     StreamEventType = "complete"
)

type StreamEvent struct {
	Type         StreamEventType
	RequestID    string
	Query        string
	Total        int
	Source       string
	SourceName   string
	Results      []ResultItem
	Error        string
	Completed    int
	TotalResults int
	Timestamp    time.Time
}

// Payload returns the wire form of the event; each type carries only its own fields.
func (e StreamEvent) Payload() map[string]any {
	payload := map[string]any{
		"type":      e.Type,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if e.RequestID != "" {
		payload["requestId"] = e.RequestID
	}
	switch e.Type {
	case StreamEventStart:
		payload["query"] = e.Query
		payload["total"] = e.Total
	case StreamEventSourceResult:
		results := e.Results
		if results == nil {
			results = []ResultItem{}
		}
		payload["source"] = e.Source
		payload["sourceName"] = e.SourceName
		payload["results"] = results
		payload["completed"] = e.Completed
		payload["total"] = e.Total
	case StreamEventSourceError:
		payload["source"] = e.Source
		payload["sourceName"] = e.SourceName
		payload["error"] = e.Error
		payload["completed"] = e.Completed
		payload["total"] = e.Total
	case StreamEventComplete:
		payload["totalResults"] = e.TotalResults
		payload["completed"] = e.Completed
		payload["total"] = e.Total
	}
	return payload
}

type SuggestionType string

const (
	SuggestionExact   SuggestionType = "exact"
	SuggestionRelated SuggestionType = "related"
	SuggestionOther   SuggestionType = "suggestion"
)

type Suggestion struct {
	Text  string         `json:"text"`
	Type  SuggestionType `json:"type"`
	Score int            `json:"score"`
}

type SourceInfo struct {
	Key    string     `json:"key"`
	Name   string     `json:"name"`
	Kind   SourceKind `json:"kind"`
	Weight int        `json:"weight"`
}

type SourceDiagnostics struct {
	Key                 string     `json:"key"`
	Name                string     `json:"name"`
	Kind                SourceKind `json:"kind"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}
