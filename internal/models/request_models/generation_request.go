package request_models

type StartGenerationRequest struct {
	PaymentID string `json:"payment_id" binding:"required,uuid"`
	AvatarID  string `json:"avatar_id" binding:"required,uuid"`
	StyleID   string `json:"style_id" binding:"required,uuid"`
}

// GenerationCallbackRequest is the image provider's task callback.
type GenerationCallbackRequest struct {
	TaskID     string   `json:"task_id" binding:"required"`
	State      string   `json:"state" binding:"required"` // "success" | "failed"
	ResultURLs []string `json:"result_urls"`
	Error      string   `json:"error"`
}

// JobFailureCallbackRequest is the dead-letter signal from the task queue
// infrastructure. Delivery is at-least-once.
type JobFailureCallbackRequest struct {
	JobID    string `json:"job_id" binding:"required,uuid"`
	AvatarID string `json:"avatar_id"`
	UserID   string `json:"user_id"`
	Error    string `json:"error"`
}
