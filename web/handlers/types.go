package handlers

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse is the response format for GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// CollectionResponse is a single resolved collection name.
type CollectionResponse struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

// CollectionsResponse is the response format for GET /api/collections.
type CollectionsResponse struct {
	Collections map[string]string `json:"collections"`
	Total       int               `json:"total"`
}

// HarvestRequest is the request body for POST /api/harvest.
type HarvestRequest struct {
	SkipDays int  `json:"skip_days,omitempty"`
	Limit    int  `json:"limit,omitempty"`
	DryRun   bool `json:"dry_run,omitempty"`
}

// HarvestResponse acknowledges an accepted harvest trigger. The run itself
// is asynchronous; progress is reported on the websocket feed and in the
// snapshot run list.
type HarvestResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
