// Package normalize converts raw API objects, partial update payloads and manually built bot
// records into canonical entity records. Every function is pure: inputs are never modified and
// results never alias them.
package normalize

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/parsascontentcorner/discordlitesync/internal/discord"
	"github.com/parsascontentcorner/discordlitesync/internal/models"
)

// ErrInvalid marks a payload that cannot be turned into a record
var ErrInvalid = errors.New("invalid payload")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func ids(in []snowflake.ID) []snowflake.ID {
	if in == nil {
		return nil
	}
	return slices.Clone(in)
}

// User converts a full user object
func User(raw *discord.User) *models.User {
	return &models.User{
		ID:            raw.ID,
		Username:      raw.Username,
		GlobalName:    deref(raw.GlobalName),
		Discriminator: raw.Discriminator,
		Avatar:        deref(raw.Avatar),
		Bot:           raw.Bot,
	}
}

// PartialUser merges a partial user, as carried by presence updates, onto the known record.
// Only fields present in the payload replace existing values
func PartialUser(raw *discord.User, existing *models.User) *models.User {
	if existing == nil {
		return User(raw)
	}

	out := existing.Clone()
	if raw.Username != "" {
		out.Username = raw.Username
	}
	if raw.GlobalName != nil {
		out.GlobalName = *raw.GlobalName
	}
	if raw.Discriminator != "" {
		out.Discriminator = raw.Discriminator
	}
	if raw.Avatar != nil {
		out.Avatar = *raw.Avatar
	}
	out.Bot = out.Bot || raw.Bot
	return out
}

// Guild converts a guild object. Collections absent from the payload, and the bot-owned accent
// colour, are carried over from the existing record
func Guild(raw *discord.Guild, existing *models.Guild) *models.Guild {
	out := &models.Guild{
		ID:          raw.ID,
		Name:        raw.Name,
		Icon:        deref(raw.Icon),
		OwnerID:     raw.OwnerID,
		Unavailable: raw.Unavailable,
	}

	if existing != nil {
		out.AccentColour = existing.AccentColour
		out.RoleIDs = ids(existing.RoleIDs)
		out.ChannelIDs = ids(existing.ChannelIDs)
		out.CreatedAt = existing.CreatedAt
		out.UpdatedAt = existing.UpdatedAt

		// An outage notice only carries the id
		if raw.Unavailable && raw.Name == "" {
			out.Name = existing.Name
			out.Icon = existing.Icon
			out.OwnerID = existing.OwnerID
		}
	}

	if raw.Roles != nil {
		out.RoleIDs = make([]snowflake.ID, len(raw.Roles))
		for i, r := range raw.Roles {
			out.RoleIDs[i] = r.ID
		}
	}
	if raw.Channels != nil {
		out.ChannelIDs = make([]snowflake.ID, len(raw.Channels))
		for i, c := range raw.Channels {
			out.ChannelIDs[i] = c.ID
		}
	}

	return out
}

// GuildWithRole returns a copy of guild listing roleID, and whether the list changed
func GuildWithRole(guild *models.Guild, roleID snowflake.ID) (*models.Guild, bool) {
	if guild.HasRole(roleID) {
		return guild.Clone(), false
	}
	out := guild.Clone()
	out.RoleIDs = append(out.RoleIDs, roleID)
	return out, true
}

// GuildWithoutRole returns a copy of guild without roleID, and whether the list changed
func GuildWithoutRole(guild *models.Guild, roleID snowflake.ID) (*models.Guild, bool) {
	if !guild.HasRole(roleID) {
		return guild.Clone(), false
	}
	out := guild.Clone()
	out.RoleIDs = slices.DeleteFunc(out.RoleIDs, func(id snowflake.ID) bool { return id == roleID })
	return out, true
}

// Member converts a member object. guildID overrides the payload's guild id when set, because
// REST responses and chunk entries omit it. A present member is never marked as left
func Member(raw *discord.Member, guildID snowflake.ID, existing *models.Member) (*models.Member, error) {
	if raw.User == nil || raw.User.ID == 0 {
		return nil, invalid("member without user")
	}
	if guildID == 0 {
		guildID = raw.GuildID
	}
	if guildID == 0 {
		return nil, invalid("member %s without guild", raw.User.ID)
	}

	out := &models.Member{
		GuildID: guildID,
		UserID:  raw.User.ID,
		Nick:    deref(raw.Nick),
		Avatar:  deref(raw.Avatar),
		RoleIDs: ids(raw.Roles),
		Pending: raw.Pending,
	}

	if existing != nil {
		out.JoinedAt = existing.JoinedAt
		out.CreatedAt = existing.CreatedAt
		out.UpdatedAt = existing.UpdatedAt
	}
	if raw.JoinedAt != nil {
		out.JoinedAt = raw.JoinedAt.UTC()
	}

	return out, nil
}

// MemberLeft marks a member as having left at leftAt. An unknown member yields a minimal record
// so the departure is still resolvable; a member that already left keeps its first departure time
func MemberLeft(key models.MemberKey, leftAt time.Time, existing *models.Member) *models.Member {
	if existing == nil {
		return &models.Member{
			GuildID: key.GuildID,
			UserID:  key.UserID,
			LeftAt:  sql.NullTime{Time: leftAt.UTC(), Valid: true},
		}
	}

	out := existing.Clone()
	if !out.LeftAt.Valid {
		out.LeftAt = sql.NullTime{Time: leftAt.UTC(), Valid: true}
	}
	return out
}

// Channel converts a channel object
func Channel(raw *discord.Channel) *models.Channel {
	return &models.Channel{
		ID:       raw.ID,
		GuildID:  raw.GuildID,
		Type:     models.ChannelType(raw.Type),
		Name:     raw.Name,
		Position: raw.Position,
		ParentID: raw.ParentID,
		Topic:    deref(raw.Topic),
		NSFW:     raw.NSFW,
	}
}

// Role converts a role object. Permissions arrive as a decimal string
func Role(guildID snowflake.ID, raw *discord.Role) (*models.Role, error) {
	var permissions int64
	if raw.Permissions != "" {
		p, err := strconv.ParseInt(raw.Permissions, 10, 64)
		if err != nil {
			return nil, invalid("role %s permissions %q", raw.ID, raw.Permissions)
		}
		permissions = p
	}

	return &models.Role{
		GuildID:     guildID,
		RoleID:      raw.ID,
		Name:        raw.Name,
		Colour:      raw.Color,
		Position:    raw.Position,
		Permissions: permissions,
		Hoist:       raw.Hoist,
		Mentionable: raw.Mentionable,
		Managed:     raw.Managed,
	}, nil
}

// RoleDeleted marks a role as deleted, creating a minimal record when it was never seen
func RoleDeleted(key models.RoleKey, existing *models.Role) *models.Role {
	if existing == nil {
		return &models.Role{GuildID: key.GuildID, RoleID: key.RoleID, Deleted: true}
	}
	out := existing.Clone()
	out.Deleted = true
	return out
}

// Message converts a message object. For edits, which may be partial, only the fields present in
// the payload replace the existing record's values
func Message(raw *discord.Message, existing *models.Message) *models.Message {
	var out *models.Message
	if existing != nil {
		out = existing.Clone()
	} else {
		out = &models.Message{ID: raw.ID}
	}

	if raw.ChannelID != 0 {
		out.ChannelID = raw.ChannelID
	}
	if raw.GuildID != 0 {
		out.GuildID = raw.GuildID
	}
	if raw.Author != nil {
		out.AuthorID = raw.Author.ID
	}
	if raw.Content != nil {
		out.Content = *raw.Content
	}
	if raw.Type != nil {
		out.Type = models.MessageType(*raw.Type)
	}
	if raw.Timestamp != nil {
		out.Timestamp = raw.Timestamp.UTC()
	} else if out.Timestamp.IsZero() {
		out.Timestamp = raw.ID.Time().UTC()
	}
	if raw.EditedTimestamp != nil {
		out.EditedTimestamp = sql.NullTime{Time: raw.EditedTimestamp.UTC(), Valid: true}
	}
	if raw.MessageReference != nil {
		out.ReferencedMessageID = raw.MessageReference.MessageID
	}

	return out
}

// MessageDeleted marks a message as deleted, creating a minimal record when it was never seen
func MessageDeleted(id, channelID, guildID snowflake.ID, existing *models.Message) *models.Message {
	if existing == nil {
		return &models.Message{
			ID:        id,
			ChannelID: channelID,
			GuildID:   guildID,
			Timestamp: id.Time().UTC(),
			Deleted:   true,
		}
	}
	out := existing.Clone()
	out.Deleted = true
	return out
}

// Interaction converts an interaction payload. The invoking user comes from the member in guilds
// and from the top-level user in DMs
func Interaction(raw *discord.Interaction) *models.Interaction {
	out := &models.Interaction{
		ID:            raw.ID,
		ApplicationID: raw.ApplicationID,
		Type:          models.InteractionType(raw.Type),
		GuildID:       raw.GuildID,
		ChannelID:     raw.ChannelID,
		CreatedAt:     raw.ID.Time().UTC(),
	}

	switch {
	case raw.Member != nil && raw.Member.User != nil:
		out.UserID = raw.Member.User.ID
	case raw.User != nil:
		out.UserID = raw.User.ID
	}
	if raw.Data != nil {
		out.CommandName = raw.Data.Name
	}

	return out
}

// InvokingUser returns the user embedded in an interaction, if any
func InvokingUser(raw *discord.Interaction) *discord.User {
	if raw.Member != nil && raw.Member.User != nil {
		return raw.Member.User
	}
	return raw.User
}

// Quote validates a manually built quote
func Quote(q *models.Quote) (*models.Quote, error) {
	if q.ID == 0 {
		return nil, invalid("quote without id")
	}
	out := q.Clone()
	out.Content = strings.TrimSpace(out.Content)
	if out.Content == "" {
		return nil, invalid("quote %s without content", q.ID)
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = q.ID.Time().UTC()
	}
	return out, nil
}

// Character canonicalises a manually built character. The name becomes the case-folded key;
// the name as typed is kept as the display name unless one was given
func Character(c *models.Character) (*models.Character, error) {
	if c.UserID == 0 {
		return nil, invalid("character without owner")
	}
	out := c.Clone()
	out.Name = models.CanonicalName(c.Name)
	if out.Name == "" {
		return nil, invalid("character of %s without name", c.UserID)
	}
	if strings.TrimSpace(out.DisplayName) == "" {
		out.DisplayName = strings.TrimSpace(c.Name)
	}
	return out, nil
}

// Marriage orders the pair of a manually built marriage. A marriage without a date is dated
// receivedAt
func Marriage(m *models.Marriage, receivedAt time.Time) (*models.Marriage, error) {
	if m.UserA == 0 || m.UserB == 0 {
		return nil, invalid("marriage with missing partner")
	}
	if m.UserA == m.UserB {
		return nil, invalid("user %s cannot marry themselves", m.UserA)
	}

	key := models.NewMarriageKey(m.UserA, m.UserB)
	if m.ProposerID != 0 && !key.Involves(m.ProposerID) {
		return nil, invalid("proposer %s is not part of marriage %s", m.ProposerID, key)
	}

	out := m.Clone()
	out.UserA, out.UserB = key.UserA, key.UserB
	if out.MarriedAt.IsZero() {
		out.MarriedAt = receivedAt
	}
	out.MarriedAt = out.MarriedAt.UTC()
	return out, nil
}
