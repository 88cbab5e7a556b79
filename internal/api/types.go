package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes an encoding job in a transport-friendly format.
type Job struct {
	ID             string `json:"id"`
	VideoID        string `json:"videoId"`
	InputLocator   string `json:"inputLocator"`
	Status         string `json:"status"`
	Attempts       int    `json:"attempts"`
	MaxAttempts    int    `json:"maxAttempts"`
	LastError      string `json:"lastError,omitempty"`
	LeaseOwner     string `json:"leaseOwner,omitempty"`
	LeaseExpiresAt string `json:"leaseExpiresAt,omitempty"`
	AvailableAt    string `json:"availableAt,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
	FinishedAt     string `json:"finishedAt,omitempty"`
}

// QueueStats mirrors queue.Stats.
type QueueStats struct {
	Queued     int `json:"queued"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// JobSummary is the last job a worker claimed.
type JobSummary struct {
	ID        string `json:"id"`
	VideoID   string `json:"videoId"`
	Attempts  int    `json:"attempts"`
	ClaimedAt string `json:"claimedAt,omitempty"`
}

// WorkerStatus summarizes encoding worker state.
type WorkerStatus struct {
	State            string      `json:"state"`
	WorkerID         string      `json:"workerId"`
	EncoderAvailable bool        `json:"encoderAvailable"`
	InFlight         int         `json:"inFlight"`
	LastError        string      `json:"lastError,omitempty"`
	LastJob          *JobSummary `json:"lastJob,omitempty"`
	Queue            QueueStats  `json:"queue"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	VideosDriver string             `json:"videosDriver"`
	Worker       WorkerStatus       `json:"worker"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// Video is the encoding state of one video record.
type Video struct {
	VideoID             string `json:"videoId"`
	EncodingStatus      string `json:"encodingStatus"`
	EncodingCompletedAt string `json:"encodingCompletedAt,omitempty"`
	AdaptiveManifestURL string `json:"adaptiveManifestUrl,omitempty"`
	ProgressiveURL      string `json:"progressiveUrl,omitempty"`
	ThumbnailURL        string `json:"thumbnailUrl,omitempty"`
	Degraded            bool   `json:"degraded"`
	FailureReason       string `json:"failureReason,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// EnqueueRequest is the body of POST /api/jobs and of AMQP upload events.
type EnqueueRequest struct {
	VideoID      string `json:"video_id" binding:"required"`
	InputLocator string `json:"input_locator" binding:"required"`
}

// EnqueueResponse reports the active job for the video and whether it was
// created by this request.
type EnqueueResponse struct {
	Job     Job  `json:"job"`
	Created bool `json:"created"`
}

// RetryRequest is the body of POST /api/jobs/retry. An empty list retries
// every failed job.
type RetryRequest struct {
	IDs []string `json:"ids"`
}

// RemoveResponse reports how many jobs DELETE /api/jobs/:id removed. In-progress
// jobs are never removed.
type RemoveResponse struct {
	Removed int64 `json:"removed"`
}
