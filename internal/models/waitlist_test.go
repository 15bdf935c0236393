package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitlistEntry_OfferOpen(t *testing.T) {
	expiry := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)

	waiting := &WaitlistEntry{Status: WaitlistWaiting}
	assert.False(t, waiting.OfferOpen(expiry.Add(-time.Hour)))

	noDeadline := &WaitlistEntry{Status: WaitlistOffered}
	assert.False(t, noDeadline.OfferOpen(expiry.Add(-time.Hour)))

	offered := &WaitlistEntry{Status: WaitlistOffered, OfferExpiresAt: &expiry}
	assert.True(t, offered.OfferOpen(expiry.Add(-time.Minute)))
	assert.True(t, offered.OfferOpen(expiry.Add(-time.Nanosecond)))

	// The deadline itself is already closed.
	assert.False(t, offered.OfferOpen(expiry))
	assert.False(t, offered.OfferOpen(expiry.Add(time.Minute)))
}
