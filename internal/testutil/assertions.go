package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parsascontentcorner/discordlitesync/internal/models"
)

// AssertUserEqual performs a deep comparison of two User objects.
// Ignores the store-maintained timestamps (CreatedAt, UpdatedAt).
func AssertUserEqual(t *testing.T, expected, actual *models.User) {
	t.Helper()

	if !assert.NotNil(t, actual, "user should not be nil") {
		return
	}
	assert.Equal(t, expected.ID, actual.ID, "ID should match")
	assert.Equal(t, expected.Username, actual.Username, "Username should match")
	assert.Equal(t, expected.GlobalName, actual.GlobalName, "GlobalName should match")
	assert.Equal(t, expected.Discriminator, actual.Discriminator, "Discriminator should match")
	assert.Equal(t, expected.Avatar, actual.Avatar, "Avatar should match")
	assert.Equal(t, expected.Bot, actual.Bot, "Bot should match")
}

// AssertMemberEqual performs a deep comparison of two Member objects.
// Ignores timestamps (CreatedAt, UpdatedAt); JoinedAt and LeftAt are compared with tolerance.
func AssertMemberEqual(t *testing.T, expected, actual *models.Member) {
	t.Helper()

	if !assert.NotNil(t, actual, "member should not be nil") {
		return
	}
	assert.Equal(t, expected.Key(), actual.Key(), "Key should match")
	assert.Equal(t, expected.Nick, actual.Nick, "Nick should match")
	assert.Equal(t, expected.Avatar, actual.Avatar, "Avatar should match")
	assert.ElementsMatch(t, expected.RoleIDs, actual.RoleIDs, "RoleIDs should match")
	assert.Equal(t, expected.Pending, actual.Pending, "Pending should match")
	AssertTimeAlmostEqual(t, expected.JoinedAt, actual.JoinedAt, time.Second)

	assert.Equal(t, expected.LeftAt.Valid, actual.LeftAt.Valid, "LeftAt validity should match")
	if expected.LeftAt.Valid && actual.LeftAt.Valid {
		AssertTimeAlmostEqual(t, expected.LeftAt.Time, actual.LeftAt.Time, time.Second)
	}
}

// AssertGuildEqual performs a deep comparison of two Guild objects.
func AssertGuildEqual(t *testing.T, expected, actual *models.Guild) {
	t.Helper()

	if !assert.NotNil(t, actual, "guild should not be nil") {
		return
	}
	assert.Equal(t, expected.ID, actual.ID, "ID should match")
	assert.Equal(t, expected.Name, actual.Name, "Name should match")
	assert.Equal(t, expected.Icon, actual.Icon, "Icon should match")
	assert.Equal(t, expected.OwnerID, actual.OwnerID, "OwnerID should match")
	assert.Equal(t, expected.AccentColour, actual.AccentColour, "AccentColour should match")
	assert.ElementsMatch(t, expected.RoleIDs, actual.RoleIDs, "RoleIDs should match")
	assert.ElementsMatch(t, expected.ChannelIDs, actual.ChannelIDs, "ChannelIDs should match")
	assert.Equal(t, expected.Unavailable, actual.Unavailable, "Unavailable should match")
}

// AssertTimeAlmostEqual checks if two times are within a specified delta.
// Useful for timestamp comparisons where exact equality isn't expected.
func AssertTimeAlmostEqual(t *testing.T, expected, actual time.Time, delta time.Duration) {
	t.Helper()

	diff := expected.Sub(actual)
	if diff < 0 {
		diff = -diff
	}

	assert.True(t,
		diff <= delta,
		"Times should be within %v of each other. Expected: %v, Actual: %v, Diff: %v",
		delta, expected, actual, diff,
	)
}
