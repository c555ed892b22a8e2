package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNights(t *testing.T) {
	in := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	out := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, 3, Nights(in, out))
	assert.Equal(t, 0, Nights(in, in.Add(2*time.Hour)))
	assert.Less(t, Nights(out, in), 0)
}

func TestTruncateDayConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	local := time.Date(2026, 3, 2, 2, 0, 0, 0, loc) // 1 March 21:00 UTC
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), TruncateDay(local))
}

func TestSubjectValid(t *testing.T) {
	assert.True(t, Subject{Kind: SubjectRoom, ID: 1}.Valid())
	assert.True(t, Subject{Kind: SubjectFacility, ID: 2}.Valid())
	assert.False(t, Subject{Kind: "suite", ID: 1}.Valid())
	assert.False(t, Subject{Kind: SubjectRoom}.Valid())
}

func TestRefreshTokenLive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	revoked := now.Add(-time.Minute)
	assert.True(t, RefreshToken{ExpiresAt: now.Add(time.Hour)}.Live(now))
	assert.False(t, RefreshToken{ExpiresAt: now}.Live(now))
	assert.False(t, RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked}.Live(now))
}
