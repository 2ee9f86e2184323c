package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/parsascontentcorner/discordlitesync/internal/discord"
)

// ErrUnknownEvent is returned for dispatch names the pipeline does not consume
var ErrUnknownEvent = errors.New("unknown event")

type readyPayload struct {
	User        discord.User `json:"user"`
	SessionID   string       `json:"session_id"`
	Application struct {
		ID snowflake.ID `json:"id"`
	} `json:"application"`
	Guilds []struct {
		ID snowflake.ID `json:"id"`
	} `json:"guilds"`
}

type memberRemovePayload struct {
	GuildID snowflake.ID `json:"guild_id"`
	User    discord.User `json:"user"`
}

type membersChunkPayload struct {
	GuildID    snowflake.ID     `json:"guild_id"`
	Members    []discord.Member `json:"members"`
	ChunkIndex int              `json:"chunk_index"`
	ChunkCount int              `json:"chunk_count"`
}

type rolePayload struct {
	GuildID snowflake.ID `json:"guild_id"`
	Role    discord.Role `json:"role"`
}

type roleDeletePayload struct {
	GuildID snowflake.ID `json:"guild_id"`
	RoleID  snowflake.ID `json:"role_id"`
}

type messageDeletePayload struct {
	ID        snowflake.ID `json:"id"`
	ChannelID snowflake.ID `json:"channel_id"`
	GuildID   snowflake.ID `json:"guild_id"`
}

type messageDeleteBulkPayload struct {
	IDs       []snowflake.ID `json:"ids"`
	ChannelID snowflake.ID   `json:"channel_id"`
	GuildID   snowflake.ID   `json:"guild_id"`
}

type presencePayload struct {
	GuildID snowflake.ID `json:"guild_id"`
	User    discord.User `json:"user"`
	Status  string       `json:"status"`
}

// Decode converts a gateway dispatch payload into its event. receivedAt stamps events whose
// payload carries no time of its own, such as a member leaving
func Decode(name string, data json.RawMessage, receivedAt time.Time) (Event, error) {
	switch name {
	case NameReady:
		var p readyPayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		ready := Ready{User: p.User, ApplicationID: p.Application.ID, SessionID: p.SessionID}
		for _, g := range p.Guilds {
			ready.GuildIDs = append(ready.GuildIDs, g.ID)
		}
		return ready, nil

	case NameGuildCreate, NameGuildUpdate:
		var g discord.Guild
		if err := unmarshal(name, data, &g); err != nil {
			return nil, err
		}
		if name == NameGuildCreate {
			return GuildCreate{Guild: g}, nil
		}
		return GuildUpdate{Guild: g}, nil

	case NameMemberAdd, NameMemberUpdate:
		var m discord.Member
		if err := unmarshal(name, data, &m); err != nil {
			return nil, err
		}
		if name == NameMemberAdd {
			return MemberAdd{Member: m}, nil
		}
		return MemberUpdate{Member: m}, nil

	case NameMemberRemove:
		var p memberRemovePayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		return MemberRemove{GuildID: p.GuildID, User: p.User, LeftAt: receivedAt.UTC()}, nil

	case NameMembersChunk:
		var p membersChunkPayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		return MembersChunk{GuildID: p.GuildID, Members: p.Members, ChunkIndex: p.ChunkIndex, ChunkCount: p.ChunkCount}, nil

	case NameRoleCreate, NameRoleUpdate:
		var p rolePayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		if name == NameRoleCreate {
			return RoleCreate{GuildID: p.GuildID, Role: p.Role}, nil
		}
		return RoleUpdate{GuildID: p.GuildID, Role: p.Role}, nil

	case NameRoleDelete:
		var p roleDeletePayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		return RoleDelete{GuildID: p.GuildID, RoleID: p.RoleID}, nil

	case NameChannelCreate, NameChannelUpdate:
		var c discord.Channel
		if err := unmarshal(name, data, &c); err != nil {
			return nil, err
		}
		if name == NameChannelCreate {
			return ChannelCreate{Channel: c}, nil
		}
		return ChannelUpdate{Channel: c}, nil

	case NameMessageCreate, NameMessageUpdate:
		var m discord.Message
		if err := unmarshal(name, data, &m); err != nil {
			return nil, err
		}
		if name == NameMessageCreate {
			return MessageCreate{Message: m}, nil
		}
		return MessageUpdate{Message: m}, nil

	case NameMessageDelete:
		var p messageDeletePayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		return MessageDelete{ID: p.ID, ChannelID: p.ChannelID, GuildID: p.GuildID}, nil

	case NameMessageDeleteBulk:
		var p messageDeleteBulkPayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		return MessageDeleteBulk{IDs: p.IDs, ChannelID: p.ChannelID, GuildID: p.GuildID}, nil

	case NameUserUpdate:
		var u discord.User
		if err := unmarshal(name, data, &u); err != nil {
			return nil, err
		}
		return UserUpdate{User: u}, nil

	case NamePresenceUpdate:
		var p presencePayload
		if err := unmarshal(name, data, &p); err != nil {
			return nil, err
		}
		return PresenceUpdate{GuildID: p.GuildID, User: p.User, Status: p.Status}, nil

	case NameInteractionCreate:
		var i discord.Interaction
		if err := unmarshal(name, data, &i); err != nil {
			return nil, err
		}
		return InteractionCreate{Interaction: i}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
}

func unmarshal(name string, data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return nil
}
