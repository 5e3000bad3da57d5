package models

// Index request statuses
const (
	IndexRequestPending = "pending"
	IndexRequestCreated = "created"
)

// IndexRequest records a query that failed for lack of a composite index
type IndexRequest struct {
	ID           string `json:"id"`
	IndexURL     string `json:"indexUrl"`
	QueryDetails string `json:"queryDetails"`
	Screen       string `json:"screen"`
	Timestamp    string `json:"timestamp"`
	Status       string `json:"status"`
	ErrorDetails string `json:"errorDetails"`
}

// DecodeIndexRequest reads a stored admin_index_requests document
func DecodeIndexRequest(id string, data map[string]any) IndexRequest {
	str := func(k string) string {
		s, _ := data[k].(string)
		return s
	}
	return IndexRequest{
		ID:           id,
		IndexURL:     str("indexUrl"),
		QueryDetails: str("queryDetails"),
		Screen:       str("screen"),
		Timestamp:    str("timestamp"),
		Status:       str("status"),
		ErrorDetails: str("errorDetails"),
	}
}
