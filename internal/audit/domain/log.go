package domain

import "time"

// RequestLog is one recorded HTTP request.
type RequestLog struct {
	ID         string
	Method     string
	URL        string
	StatusCode int
	IPAddress  string
	UserAgent  string
	Duration   time.Duration
	CreatedAt  time.Time
}
