// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
)

// registry is the subset of WatchStore the processor needs. It exists so
// tests can inject an in-memory implementation.
type registry interface {
	GetThreadWatch(ctx context.Context, postID string) (*Watch, error)
	GetDMWatches(ctx context.Context, postID string) ([]*Watch, error)
	Exists(ctx context.Context, userID, postID string, typ WatchType) (bool, error)
	ThreadWatchExists(ctx context.Context, postID string) (bool, error)
	Insert(ctx context.Context, watch *Watch) error
	Delete(ctx context.Context, userID, postID string, typ WatchType) error
	GetChannelForPost(ctx context.Context, postID string) (string, error)
}

var _ registry = (*WatchStore)(nil)

// ReactionEvent is the decoded payload of a reaction_added or
// reaction_removed frame.
type ReactionEvent struct {
	UserID    string
	PostID    string
	ChannelID string
	EmojiName string
}

// Processor applies one inbound reaction event at a time: it relays
// notifications to existing watchers and registers or removes watches when
// the reaction uses a sentinel emoji. It owns no persistent state of its
// own; all subscription state lives in the registry.
type Processor struct {
	api     *Client
	watches registry
	cfg     *Config
	log     zerolog.Logger

	botUserID string
}

// NewProcessor creates a processor. It stays inert until the bot identity
// is captured from a hello frame.
func NewProcessor(api *Client, watches registry, cfg *Config, log zerolog.Logger) *Processor {
	return &Processor{
		api:     api,
		watches: watches,
		cfg:     cfg,
		log:     log.With().Str("component", "processor").Logger(),
	}
}

// SetBotUser records the bot's own user id. The supervisor resets it to ""
// at the start of every session; it is recaptured from the next hello.
func (p *Processor) SetBotUser(userID string) {
	p.botUserID = userID
}

// HandleEvent dispatches one decoded WebSocket frame. Reaction events
// received before the bot identity is known are dropped without any
// outbound call or registry access; all unrecognized event types are
// ignored.
func (p *Processor) HandleEvent(ctx context.Context, evt *model.WebSocketEvent) error {
	switch evt.EventType() {
	case model.WebsocketEventHello:
		if broadcast := evt.GetBroadcast(); broadcast != nil {
			p.SetBotUser(broadcast.UserId)
		}
		p.log.Info().Str("bot_user_id", p.botUserID).Msg("Bot identity captured")
		return nil
	case model.WebsocketEventReactionAdded, model.WebsocketEventReactionRemoved:
		if p.botUserID == "" {
			p.log.Debug().
				Str("event_type", string(evt.EventType())).
				Msg("Dropping reaction event received before hello")
			return nil
		}
		reaction, err := p.parseReaction(evt)
		if err != nil {
			p.log.Warn().Err(err).Msg("Failed to parse reaction event")
			return nil
		}
		if reaction == nil {
			return nil
		}
		if evt.EventType() == model.WebsocketEventReactionAdded {
			if err := p.handleReactionAdded(ctx, reaction); err != nil {
				return fmt.Errorf("reaction_added on post %s by user %s: %w", reaction.PostID, reaction.UserID, err)
			}
		} else {
			if err := p.handleReactionRemoved(ctx, reaction); err != nil {
				return fmt.Errorf("reaction_removed on post %s by user %s: %w", reaction.PostID, reaction.UserID, err)
			}
		}
		return nil
	default:
		p.log.Trace().Str("event_type", string(evt.EventType())).Msg("Ignoring event type")
		return nil
	}
}

// parseReaction extracts the reaction payload from a reaction event. The
// payload is a JSON-encoded string in the event data; the channel comes
// from the event broadcast, which the server sets for both event kinds.
// Returns (nil, nil) when the event carries no reaction data.
func (p *Processor) parseReaction(evt *model.WebSocketEvent) (*ReactionEvent, error) {
	reactionJSON, ok := evt.GetData()["reaction"].(string)
	if !ok {
		return nil, nil
	}
	var reaction model.Reaction
	if err := json.Unmarshal([]byte(reactionJSON), &reaction); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reaction: %w", err)
	}
	var channelID string
	if broadcast := evt.GetBroadcast(); broadcast != nil {
		channelID = broadcast.ChannelId
	}
	return &ReactionEvent{
		UserID:    reaction.UserId,
		PostID:    reaction.PostId,
		ChannelID: channelID,
		EmojiName: reaction.EmojiName,
	}, nil
}

func (p *Processor) handleReactionAdded(ctx context.Context, reaction *ReactionEvent) error {
	threadWatch, err := p.watches.GetThreadWatch(ctx, reaction.PostID)
	if err != nil {
		return err
	}
	dmWatches, err := p.watches.GetDMWatches(ctx, reaction.PostID)
	if err != nil {
		return err
	}

	user, err := p.api.GetUser(ctx, reaction.UserID)
	if err != nil {
		return err
	}
	teamName, err := p.teamNameForChannel(ctx, reaction.ChannelID)
	if err != nil {
		return err
	}

	if threadWatch != nil {
		if err := p.relayToThread(ctx, threadWatch, reaction, user, teamName, true); err != nil {
			return err
		}
	}
	for _, watch := range dmWatches {
		if err := p.relayToDM(ctx, watch, reaction, user, teamName, true); err != nil {
			return err
		}
	}

	typ, ok := p.watchTypeForEmoji(reaction.EmojiName)
	if !ok {
		return nil
	}
	exists, err := p.watchExists(ctx, reaction, typ)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	watch := &Watch{
		UserID:    reaction.UserID,
		ChannelID: reaction.ChannelID,
		PostID:    reaction.PostID,
		Type:      typ,
	}
	if err := p.watches.Insert(ctx, watch); err != nil {
		return err
	}
	p.log.Info().
		Str("post_id", reaction.PostID).
		Str("user_id", reaction.UserID).
		Str("type", string(typ)).
		Msg("Watch registered")
	return p.sendDM(ctx, reaction.UserID,
		watchConfirmMessage(typ, permalink(p.cfg.ServerURL, teamName, reaction.PostID)))
}

func (p *Processor) handleReactionRemoved(ctx context.Context, reaction *ReactionEvent) error {
	if typ, ok := p.watchTypeForEmoji(reaction.EmojiName); ok {
		exists, err := p.watches.Exists(ctx, reaction.UserID, reaction.PostID, typ)
		if err != nil {
			return err
		}
		if exists {
			teamName, err := p.teamNameForChannel(ctx, reaction.ChannelID)
			if err != nil {
				return err
			}
			msg := unwatchConfirmMessage(typ, p.cfg.ThreadWatchEmoji,
				permalink(p.cfg.ServerURL, teamName, reaction.PostID))
			if err := p.sendDM(ctx, reaction.UserID, msg); err != nil {
				return err
			}
			if err := p.watches.Delete(ctx, reaction.UserID, reaction.PostID, typ); err != nil {
				return err
			}
			p.log.Info().
				Str("post_id", reaction.PostID).
				Str("user_id", reaction.UserID).
				Str("type", string(typ)).
				Msg("Watch removed")
		}
	}

	// The relay phase runs regardless of whether a watch was just removed.
	threadWatch, err := p.watches.GetThreadWatch(ctx, reaction.PostID)
	if err != nil {
		return err
	}
	dmWatches, err := p.watches.GetDMWatches(ctx, reaction.PostID)
	if err != nil {
		return err
	}
	// The original channel context comes from the registry, not the event:
	// it must survive the deletion of the triggering row. No row at all
	// means nothing is left to relay to.
	channelID, err := p.watches.GetChannelForPost(ctx, reaction.PostID)
	if err != nil {
		return err
	}
	if channelID == "" {
		return nil
	}

	user, err := p.api.GetUser(ctx, reaction.UserID)
	if err != nil {
		return err
	}
	teamName, err := p.teamNameForChannel(ctx, channelID)
	if err != nil {
		return err
	}

	if threadWatch != nil {
		if err := p.relayToThread(ctx, threadWatch, reaction, user, teamName, false); err != nil {
			return err
		}
	}
	for _, watch := range dmWatches {
		if err := p.relayToDM(ctx, watch, reaction, user, teamName, false); err != nil {
			return err
		}
	}
	return nil
}

// relayToThread posts a relay notification into the watched post's thread,
// rooted at the post's own root, or at the post itself when it is a thread
// root.
func (p *Processor) relayToThread(ctx context.Context, watch *Watch, reaction *ReactionEvent, user *model.User, teamName string, added bool) error {
	post, err := p.api.GetPost(ctx, reaction.PostID)
	if err != nil {
		return err
	}
	var link string
	if post.RootId != "" {
		link = permalink(p.cfg.ServerURL, teamName, reaction.PostID)
	}
	rootID := post.RootId
	if rootID == "" {
		rootID = reaction.PostID
	}
	msg := threadRelayMessage(added, displayName(user), reaction.EmojiName, link)
	_, err = p.api.SendMessage(ctx, watch.ChannelID, msg, rootID)
	return err
}

// relayToDM delivers a relay notification to the subscriber's direct
// message channel with the bot.
func (p *Processor) relayToDM(ctx context.Context, watch *Watch, reaction *ReactionEvent, user *model.User, teamName string, added bool) error {
	msg := dmRelayMessage(added, displayName(user), reaction.EmojiName,
		permalink(p.cfg.ServerURL, teamName, reaction.PostID))
	return p.sendDM(ctx, watch.UserID, msg)
}

// sendDM posts a message into the bot's direct channel with a user.
func (p *Processor) sendDM(ctx context.Context, userID, message string) error {
	dm, err := p.api.GetDirectChannel(ctx, p.botUserID, userID)
	if err != nil {
		return err
	}
	_, err = p.api.SendMessage(ctx, dm.Id, message, "")
	return err
}

// watchExists applies the keying policy for watch registration: thread
// watches are unique per post regardless of user, DM watches are unique
// per (user, post).
func (p *Processor) watchExists(ctx context.Context, reaction *ReactionEvent, typ WatchType) (bool, error) {
	if typ == WatchTypeThread {
		return p.watches.ThreadWatchExists(ctx, reaction.PostID)
	}
	return p.watches.Exists(ctx, reaction.UserID, reaction.PostID, typ)
}

// watchTypeForEmoji maps a sentinel emoji name to its watch type. Emoji
// names are compared by exact string equality.
func (p *Processor) watchTypeForEmoji(emojiName string) (WatchType, bool) {
	switch emojiName {
	case p.cfg.ThreadWatchEmoji:
		return WatchTypeThread, true
	case p.cfg.DMWatchEmoji:
		return WatchTypeDM, true
	default:
		return "", false
	}
}

func (p *Processor) teamNameForChannel(ctx context.Context, channelID string) (string, error) {
	channel, err := p.api.GetChannel(ctx, channelID)
	if err != nil {
		return "", err
	}
	team, err := p.api.GetTeam(ctx, channel.TeamId)
	if err != nil {
		return "", err
	}
	return team.Name, nil
}
