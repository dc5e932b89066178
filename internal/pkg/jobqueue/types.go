package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeCoverProcessing JobType = "cover_processing"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents a background job
type Job struct {
	ID         string                 `json:"id"`
	Type       JobType                `json:"type"`
	Status     JobStatus              `json:"status"`
	Payload    map[string]interface{} `json:"payload"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
	ErrorMsg   string                 `json:"error_msg,omitempty"`
	RetryCount int                    `json:"retry_count"`
	MaxRetries int                    `json:"max_retries"`
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	j.Status = JobStatusProcessing
	j.UpdatedAt = time.Now()
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	j.Status = JobStatusCompleted
	j.UpdatedAt = time.Now()
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMsg = errorMsg
	j.RetryCount++
	j.UpdatedAt = time.Now()
}

// MarkAsRetrying resets the job status to pending for another attempt
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusPending
	j.UpdatedAt = time.Now()
}

// CoverProcessingJobPayload contains the payload for cover processing jobs
type CoverProcessingJobPayload struct {
	CoverID     uint   `json:"cover_id"`
	ProviderURL string `json:"provider_url"`
}

// ToMap converts the payload to a map for storage
func (p CoverProcessingJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"cover_id":     p.CoverID,
		"provider_url": p.ProviderURL,
	}
}

// CoverProcessingJobPayloadFromMap creates a payload from a stored map
func CoverProcessingJobPayloadFromMap(data map[string]interface{}) (*CoverProcessingJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload CoverProcessingJobPayload
	if err := json.Unmarshal(jsonData, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
