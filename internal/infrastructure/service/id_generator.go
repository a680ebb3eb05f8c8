package service

import (
	"github.com/google/uuid"
)

// UUIDGenerator issues notification and broadcast ids.
type UUIDGenerator struct{}

// NewIDGenerator creates a UUIDGenerator.
func NewIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// GenerateID returns a random UUIDv4 string.
func (g *UUIDGenerator) GenerateID() string {
	return uuid.NewString()
}
