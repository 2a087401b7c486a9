// Package adapter bridges the chat platform and the dispatch core. The
// Discord adapter turns inbound messages into submissions and posts
// synthesised replies back to the originating channel.
package adapter

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/lyralab/quantumd/internal/fault"
	"github.com/lyralab/quantumd/internal/logging"
	"github.com/lyralab/quantumd/internal/supervisor"
	"github.com/lyralab/quantumd/internal/types"
)

// defaultPriority is the band assigned to ordinary chat messages.
const defaultPriority = 5

// DiscordConfig holds the connection settings.
type DiscordConfig struct {
	Token     string
	ChannelID string // empty means every channel the bot can read
}

// DiscordAdapter is the ingress/egress pair over one Discord session.
type DiscordAdapter struct {
	session   *discordgo.Session
	channelID string
	botID     string
	core      *supervisor.Supervisor
}

// NewDiscordAdapter creates the adapter and registers its message handler.
// Call Start to connect.
func NewDiscordAdapter(cfg DiscordConfig, core *supervisor.Supervisor) (*DiscordAdapter, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	a := &DiscordAdapter{
		session:   session,
		channelID: cfg.ChannelID,
		core:      core,
	}
	session.AddHandler(a.handleMessage)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	return a, nil
}

// Start connects to Discord.
func (a *DiscordAdapter) Start() error {
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	a.botID = a.session.State.User.ID
	logging.Info("adapter", "Connected as %s", a.session.State.User.Username)
	return nil
}

// Stop disconnects from Discord.
func (a *DiscordAdapter) Stop() error {
	return a.session.Close()
}

// DeliverReply posts a synthesised reply to its channel. Wire this as the
// supervisor's OnReply callback.
func (a *DiscordAdapter) DeliverReply(reply *types.Reply) {
	if _, err := a.session.ChannelMessageSend(reply.Channel, reply.Content); err != nil {
		logging.Error("adapter", "Failed to deliver %s: %v", reply.RequestID, err)
		return
	}
	logging.Debug("adapter", "Delivered %s to %s (%d chars)", reply.RequestID, reply.Channel, len(reply.Content))
}

// DeliverFailure tells the user their request did not produce a reply.
// Cancellations stay silent.
func (a *DiscordAdapter) DeliverFailure(req *types.Request, err error) {
	msg, ok := failureMessage(err)
	if !ok {
		return
	}
	if _, sendErr := a.session.ChannelMessageSend(req.Channel, msg); sendErr != nil {
		logging.Error("adapter", "Failed to report failure for %s: %v", req.ID, sendErr)
	}
}

// failureMessage maps a terminal error to the user-facing apology.
// Cancellations produce nothing.
func failureMessage(err error) (string, bool) {
	if fault.KindOf(err) == fault.Cancelled {
		return "", false
	}
	return "I couldn't process that request right now. Please try again in a moment.", true
}

func (a *DiscordAdapter) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == a.botID {
		return
	}
	if a.channelID != "" && m.ChannelID != a.channelID {
		return
	}

	content := strings.TrimSpace(m.Content)
	if content == "" {
		return
	}

	if status, ok := a.handleCommand(content, m.Author.ID); ok {
		if _, err := s.ChannelMessageSend(m.ChannelID, status); err != nil {
			logging.Error("adapter", "Failed to answer command: %v", err)
		}
		return
	}

	queueID, position, eta, err := a.core.Submit(m.Author.ID, content, m.ChannelID, defaultPriority)
	if err != nil {
		logging.Error("adapter", "Submit failed for %s: %v", m.Author.ID, err)
		s.ChannelMessageSend(m.ChannelID, "I'm at capacity right now. Please try again shortly.")
		return
	}
	logging.Debug("adapter", "Queued %s at position %d (eta %.0fs): %s",
		queueID, position, eta, logging.Truncate(content, 50))

	if position > 1 {
		s.ChannelMessageSend(m.ChannelID,
			fmt.Sprintf("You're #%d in line, about %.0f seconds.", position, eta))
	}
}

// handleCommand serves the lightweight status commands without queueing.
func (a *DiscordAdapter) handleCommand(content, userID string) (string, bool) {
	switch strings.ToLower(content) {
	case "!status":
		st := a.core.Status(userID)
		switch st.State {
		case types.QueueProcessing:
			return "Your request is being processed right now.", true
		case types.QueueWaiting:
			return fmt.Sprintf("You're #%d in line, about %d seconds.", st.Position, st.ETASeconds), true
		default:
			return "You have no request in the queue.", true
		}
	case "!queue":
		queued, active := a.core.QueueDepth()
		return fmt.Sprintf("Queue: %d waiting, %d processing.", queued, active), true
	}
	return "", false
}
