// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
)

var errEmptyResponse = errors.New("empty response")

// Client wraps the Mattermost REST API. All read operations are memoized
// for the lifetime of the process; SendMessage is the only call with an
// observable external effect.
type Client struct {
	api *model.Client4
	log zerolog.Logger

	users    *memoCache[*model.User]
	channels *memoCache[*model.Channel]
	teams    *memoCache[*model.Team]
	posts    *memoCache[*model.Post]
	directs  *memoCache[*model.Channel]
}

// NewClient creates an authenticated API client for the given server.
func NewClient(serverURL, token string, log zerolog.Logger) *Client {
	api := model.NewAPIv4Client(serverURL)
	api.SetToken(token)
	return &Client{
		api:      api,
		log:      log.With().Str("component", "mm_client").Logger(),
		users:    newMemoCache[*model.User](),
		channels: newMemoCache[*model.Channel](),
		teams:    newMemoCache[*model.Team](),
		posts:    newMemoCache[*model.Post](),
		directs:  newMemoCache[*model.Channel](),
	}
}

// SendMessage posts a message to a channel. A non-empty rootID posts it as
// a threaded reply under that root.
func (c *Client) SendMessage(ctx context.Context, channelID, message, rootID string) (*model.Post, error) {
	post, _, err := c.api.CreatePost(ctx, &model.Post{
		ChannelId: channelID,
		Message:   message,
		RootId:    rootID,
	})
	if err != nil {
		return nil, &UpstreamError{Op: "create_post", ID: channelID, Err: err}
	}
	c.log.Debug().
		Str("channel_id", channelID).
		Str("root_id", rootID).
		Str("post_id", post.Id).
		Msg("Sent message")
	return post, nil
}

// GetUser fetches a user by id through the batch ids endpoint.
func (c *Client) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return c.users.GetOrFetch(userID, func() (*model.User, error) {
		users, _, err := c.api.GetUsersByIds(ctx, []string{userID})
		if err != nil {
			return nil, &UpstreamError{Op: "get_user", ID: userID, Err: err}
		}
		if len(users) == 0 {
			return nil, &UpstreamError{Op: "get_user", ID: userID, Err: errEmptyResponse}
		}
		return users[0], nil
	})
}

// GetChannel fetches a channel by id.
func (c *Client) GetChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	return c.channels.GetOrFetch(channelID, func() (*model.Channel, error) {
		channel, _, err := c.api.GetChannel(ctx, channelID, "")
		if err != nil {
			return nil, &UpstreamError{Op: "get_channel", ID: channelID, Err: err}
		}
		return channel, nil
	})
}

// GetTeam fetches a team by id.
func (c *Client) GetTeam(ctx context.Context, teamID string) (*model.Team, error) {
	return c.teams.GetOrFetch(teamID, func() (*model.Team, error) {
		team, _, err := c.api.GetTeam(ctx, teamID, "")
		if err != nil {
			return nil, &UpstreamError{Op: "get_team", ID: teamID, Err: err}
		}
		return team, nil
	})
}

// GetPost fetches a post by id.
func (c *Client) GetPost(ctx context.Context, postID string) (*model.Post, error) {
	return c.posts.GetOrFetch(postID, func() (*model.Post, error) {
		post, _, err := c.api.GetPost(ctx, postID, "")
		if err != nil {
			return nil, &UpstreamError{Op: "get_post", ID: postID, Err: err}
		}
		return post, nil
	})
}

// GetDirectChannel resolves the 1:1 direct message channel between two
// users, creating it if it does not exist yet. The result is memoized by
// the unordered pair.
func (c *Client) GetDirectChannel(ctx context.Context, userA, userB string) (*model.Channel, error) {
	key := directChannelKey(userA, userB)
	return c.directs.GetOrFetch(key, func() (*model.Channel, error) {
		channel, _, err := c.api.CreateDirectChannel(ctx, userA, userB)
		if err != nil {
			return nil, &UpstreamError{Op: "create_direct_channel", ID: key, Err: err}
		}
		return channel, nil
	})
}

// directChannelKey builds a cache key that is order-independent for the
// two participants.
func directChannelKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "," + b
}
