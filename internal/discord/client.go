package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/parsascontentcorner/discordlitesync/internal/config"
	"github.com/parsascontentcorner/discordlitesync/internal/ratelimit"
	"github.com/parsascontentcorner/discordlitesync/internal/tier"
)

const (
	discordAPIEndpoint = "https://discord.com/api/v10"
	userAgent          = "DiscordBot (https://github.com/parsascontentcorner/discordlitesync, 1.0)"

	// MaxMembersPerPage is the largest page the list guild members endpoint accepts
	MaxMembersPerPage = 1000
)

// APIError is a non-2xx response other than 404
type APIError struct {
	Status     int
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("discord API returned status %d: %s (code %d)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("discord API returned status %d", e.Status)
}

// Client fetches entities from the Discord API with the bot token
type Client struct {
	httpClient  *http.Client
	logger      *zap.Logger
	baseURL     string // Discord API base URL (configurable for testing)
	rateLimiter *ratelimit.RateLimiter
}

// NewClient creates a Discord API client authorised with the configured bot token
func NewClient(cfg *config.DiscordConfig, logger *zap.Logger) *Client {
	// Bot tokens use the "Bot" authorization scheme, not "Bearer"
	source := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.BotToken,
		TokenType:   "Bot",
	})

	baseURL := cfg.APIURL
	if baseURL == "" {
		baseURL = discordAPIEndpoint
	}

	return &Client{
		httpClient: &http.Client{
			Transport: &oauth2.Transport{Source: source},
			Timeout:   cfg.RequestTimeout,
		},
		logger:      logger,
		baseURL:     baseURL,
		rateLimiter: ratelimit.NewRateLimiter(logger),
	}
}

// SetBaseURL sets the base URL for the Discord API (used for testing)
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// SetRateLimiter replaces the rate limiter, allowing several clients to share buckets
func (c *Client) SetRateLimiter(rl *ratelimit.RateLimiter) {
	c.rateLimiter = rl
}

// GetGuild fetches a guild by id
func (c *Client) GetGuild(ctx context.Context, guildID snowflake.ID) (*Guild, error) {
	var guild Guild
	if err := c.get(ctx, "/guilds/"+guildID.String(), &guild); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched guild from Discord",
		zap.String("guild_id", guild.ID.String()),
		zap.Int("role_count", len(guild.Roles)),
	)

	return &guild, nil
}

// GetUser fetches a user by id
func (c *Client) GetUser(ctx context.Context, userID snowflake.ID) (*User, error) {
	var user User
	if err := c.get(ctx, "/users/"+userID.String(), &user); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched user from Discord",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
	)

	return &user, nil
}

// GetMember fetches one member of a guild
func (c *Client) GetMember(ctx context.Context, guildID, userID snowflake.ID) (*Member, error) {
	var member Member
	if err := c.get(ctx, "/guilds/"+guildID.String()+"/members/"+userID.String(), &member); err != nil {
		return nil, err
	}
	member.GuildID = guildID

	return &member, nil
}

// GetChannel fetches a channel by id
func (c *Client) GetChannel(ctx context.Context, channelID snowflake.ID) (*Channel, error) {
	var channel Channel
	if err := c.get(ctx, "/channels/"+channelID.String(), &channel); err != nil {
		return nil, err
	}

	return &channel, nil
}

// GetGuildRoles fetches all roles of a guild
func (c *Client) GetGuildRoles(ctx context.Context, guildID snowflake.ID) ([]Role, error) {
	var roles []Role
	if err := c.get(ctx, "/guilds/"+guildID.String()+"/roles", &roles); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched guild roles from Discord",
		zap.String("guild_id", guildID.String()),
		zap.Int("role_count", len(roles)),
	)

	return roles, nil
}

// GetGuildChannels fetches all channels of a guild
func (c *Client) GetGuildChannels(ctx context.Context, guildID snowflake.ID) ([]Channel, error) {
	var channels []Channel
	if err := c.get(ctx, "/guilds/"+guildID.String()+"/channels", &channels); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched guild channels from Discord",
		zap.String("guild_id", guildID.String()),
		zap.Int("channel_count", len(channels)),
	)

	return channels, nil
}

// ListGuildMembers fetches one page of guild members with user ids greater than after
func (c *Client) ListGuildMembers(ctx context.Context, guildID, after snowflake.ID, limit int) ([]Member, error) {
	if limit <= 0 || limit > MaxMembersPerPage {
		limit = MaxMembersPerPage
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("after", after.String())

	var members []Member
	if err := c.get(ctx, "/guilds/"+guildID.String()+"/members?"+params.Encode(), &members); err != nil {
		return nil, err
	}
	for i := range members {
		members[i].GuildID = guildID
	}

	return members, nil
}

// GetAllGuildMembers pages through the member list until a short page is returned
func (c *Client) GetAllGuildMembers(ctx context.Context, guildID snowflake.ID, pageSize int) ([]Member, error) {
	if pageSize <= 0 || pageSize > MaxMembersPerPage {
		pageSize = MaxMembersPerPage
	}

	var (
		all   []Member
		after snowflake.ID
	)
	for {
		page, err := c.ListGuildMembers(ctx, guildID, after, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}

		last := page[len(page)-1]
		if last.User == nil || last.User.ID <= after {
			return nil, fmt.Errorf("member page for guild %s did not advance", guildID)
		}
		after = last.User.ID
	}

	c.logger.Debug("fetched guild members from Discord",
		zap.String("guild_id", guildID.String()),
		zap.Int("member_count", len(all)),
	)

	return all, nil
}

// get makes a rate-limited GET request and decodes the JSON response into out.
// A 404 is reported as tier.ErrNotFound; other failures as *APIError
func (c *Client) get(ctx context.Context, path string, out any) error {
	route := ratelimit.Route(http.MethodGet, path)

	if err := c.rateLimiter.Wait(ctx, route); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	// Update rate limit info from headers
	c.rateLimiter.UpdateFromHeaders(route, resp.Header)

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s: %w", route, err)
		}
		return nil

	case resp.StatusCode == http.StatusNotFound:
		body := readErrorBody(resp.Body)
		return fmt.Errorf("%s: %s: %w", route, body.Message, tier.ErrNotFound)

	case resp.StatusCode == http.StatusTooManyRequests:
		body := readErrorBody(resp.Body)
		retryAfter := c.rateLimiter.HandleRateLimitResponse(route, resp.Header)
		return &APIError{
			Status:     resp.StatusCode,
			Code:       body.Code,
			Message:    body.Message,
			RetryAfter: retryAfter,
		}

	default:
		body := readErrorBody(resp.Body)
		return &APIError{
			Status:  resp.StatusCode,
			Code:    body.Code,
			Message: body.Message,
		}
	}
}

// readErrorBody decodes a Discord error object; non-JSON bodies become the message text
func readErrorBody(r io.Reader) APIErrorBody {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return APIErrorBody{}
	}

	var body APIErrorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		body.Message = string(raw)
	}
	return body
}

// AsAPIError reports whether err carries an *APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
