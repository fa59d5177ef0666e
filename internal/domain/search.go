package domain

type SearchSource string

const (
	SearchSourceCache  SearchSource = "cache"
	SearchSourceLive   SearchSource = "live"
	SearchSourceMerged SearchSource = "merged"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type SearchRequest struct {
	Query            string
	Limit            int
	Offset           int
	IncludeDLC       bool
	MinCachedResults int
	AllowedBuckets   []Bucket
}

type SearchDebug struct {
	CacheResults int `json:"cacheResults"`
	LiveResults  int `json:"liveResults"`
}

type SearchResponse struct {
	Results           []CatalogEntry `json:"results"`
	Total             int            `json:"total"`
	Source            SearchSource   `json:"source"`
	Cursor            *int           `json:"cursor"`
	HasMore           bool           `json:"hasMore"`
	Confidence        Confidence     `json:"confidence"`
	WasFallbackNeeded bool           `json:"wasFallbackNeeded"`
	LatencyMS         int64          `json:"latencyMs"`
	Debug             SearchDebug    `json:"debug"`
	Error             string         `json:"error,omitempty"`
}
