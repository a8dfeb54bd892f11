package store

import "github.com/google/uuid"

// GenNewID returns a time-ordered UUID v7, so ids sort with creation time.
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
