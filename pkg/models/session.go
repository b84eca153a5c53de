package models

import "time"

// SessionStatus represents the current state of a group's browser session
type SessionStatus string

const (
	StatusStarting SessionStatus = "STARTING"
	StatusReady    SessionStatus = "READY"
	StatusBusy     SessionStatus = "BUSY"
	StatusClosed   SessionStatus = "CLOSED"
	StatusError    SessionStatus = "ERROR"
)

// SessionInfo describes the live browser page owned by one group
type SessionInfo struct {
	Group      string        `json:"group"`
	Status     SessionStatus `json:"status"`
	URL        string        `json:"url"`
	StartedAt  time.Time     `json:"startedAt"`
	LastUsedAt time.Time     `json:"lastUsedAt"`
	Requests   int64         `json:"requests"`
	ConnectURL string        `json:"-"`
}
