package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewUserID generates a unique anonymous user ID with the "usr_" prefix
// Format: usr_<uuid>
func NewUserID() string {
	return "usr_" + uuid.New().String()
}

// NewItemID generates a unique queue item ID with the "item_" prefix
// Format: item_<uuid>
func NewItemID() string {
	return "item_" + uuid.New().String()
}
