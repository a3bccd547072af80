package job

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("job not found")
	ErrAlreadyFinished = errors.New("job already finished")
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

type Result struct {
	Status         Status    `json:"status"`
	DocumentsAdded int       `json:"documents_added,omitempty"`
	ChunksCreated  int       `json:"chunks_created"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
}

type Job struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Status    Status    `json:"status"`
	Result    *Result   `json:"result"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (j *Job) clone() *Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return &c
}
