package response_models

type JobAcceptedResponse struct {
	JobID           string `json:"job_id"`
	Status          string `json:"status"`
	TotalPhotos     int    `json:"total_photos"`
	AlreadyExisting bool   `json:"already_existing,omitempty"`
}

type JobStatusResponse struct {
	JobID           string   `json:"job_id"`
	Status          string   `json:"status"`
	TotalPhotos     int      `json:"total_photos"`
	CompletedPhotos int      `json:"completed_photos"`
	FailedPhotos    int      `json:"failed_photos"`
	PhotoURLs       []string `json:"photo_urls,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}
