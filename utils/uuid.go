package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier string.
// Version 7 ids sort by creation time, which keeps bid and order ids roughly in admission order.
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

