// Copyright 2024-2026 Aiku AI

package relay

import (
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"
)

// permalink builds a deep link to a post: {base}/{team}/pl/{post}.
func permalink(serverURL, teamName, postID string) string {
	return fmt.Sprintf("%s/%s/pl/%s", serverURL, teamName, postID)
}

// displayName renders a user's full name for notification text.
func displayName(user *model.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		return user.Username
	}
	return name
}

// threadRelayMessage is the notification posted into a watched post's
// thread. The permalink is only appended when the watched post is itself a
// thread reply; for a thread root the notification lands right next to the
// post and a link would be noise.
func threadRelayMessage(added bool, name, emojiName, link string) string {
	if link == "" {
		if added {
			return fmt.Sprintf("%s added the :%s: reaction to the message.", name, emojiName)
		}
		return fmt.Sprintf("%s removed the :%s: reaction from the message.", name, emojiName)
	}
	if added {
		return fmt.Sprintf("%s added the :%s: reaction to this message:\n\n%s", name, emojiName, link)
	}
	return fmt.Sprintf("%s removed the :%s: reaction from this message:\n\n%s", name, emojiName, link)
}

// dmRelayMessage is the notification delivered to a DM subscriber.
func dmRelayMessage(added bool, name, emojiName, link string) string {
	if added {
		return fmt.Sprintf("%s added the :%s: reaction to this message:\n\n%s", name, emojiName, link)
	}
	return fmt.Sprintf("%s removed the :%s: reaction from this message:\n\n%s", name, emojiName, link)
}

// watchConfirmMessage is the one-time DM sent when a watch is registered.
func watchConfirmMessage(typ WatchType, link string) string {
	if typ == WatchTypeThread {
		return fmt.Sprintf("From now on, reactions to this message will be announced in its thread.\n\n%s", link)
	}
	return fmt.Sprintf("From now on, you will receive reaction announcements for this message via direct message.\n\n%s", link)
}

// unwatchConfirmMessage is the one-time DM sent when a watch is removed.
// The thread variant is worded conditionally: the watch only ends once no
// thread-watch reaction remains on the post.
func unwatchConfirmMessage(typ WatchType, threadEmoji, link string) string {
	if typ == WatchTypeThread {
		return fmt.Sprintf("Reactions to this message will no longer be announced in its thread, provided no :%s: reaction remains on it.\n\n%s", threadEmoji, link)
	}
	return fmt.Sprintf("You will no longer receive reaction announcements for this message via direct message.\n\n%s", link)
}
