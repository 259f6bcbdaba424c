package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/counsel/api/counselv1"
	"github.com/aschepis/backscratcher/counsel/client"
	"github.com/aschepis/backscratcher/counsel/config"
)

type command struct {
	conn    *client.Client
	config  *config.ClientConfig
	timeout time.Duration
	logger  zerolog.Logger
	out     io.Writer
}

func (c *command) dispatch(ctx context.Context, name string, args []string) error {
	switch name {
	case "chat":
		return c.chat(ctx, args)
	case "erase":
		return c.erase(ctx, args)
	case "relationship":
		return c.relationship(ctx, args)
	case "outreach":
		return c.outreach(ctx, args)
	case "status":
		return c.status(ctx)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

// session parses the per-command user flags and opens a chat session.
func (c *command) session(name string, args []string) (*client.ChatSession, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	userID := fs.String("user", c.config.UserID, "User ID")
	locale := fs.String("locale", c.config.Locale, "Hotline locale")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *userID == "" {
		return nil, fmt.Errorf("%s: -user is required", name)
	}
	return client.NewChatSession(c.conn, *userID, *locale, c.timeout), nil
}

const chatHelp = `Type a message and press Enter. Commands:
  /relationship  show the relationship summary
  /outreach      show pending check-ins
  /erase         delete everything about you and start over
  /quit          leave
`

func (c *command) chat(ctx context.Context, args []string) error {
	sess, err := c.session("chat", args)
	if err != nil {
		return err
	}

	fmt.Fprint(c.out, chatHelp)
	if msgs, err := sess.Outreach(ctx); err == nil {
		c.printOutreach(msgs)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return nil
		case "/relationship":
			rel, err := sess.Relationship(ctx)
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
				continue
			}
			c.printRelationship(rel)
			continue
		case "/outreach":
			msgs, err := sess.Outreach(ctx)
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
				continue
			}
			c.printOutreach(msgs)
			continue
		case "/erase":
			if err := sess.Erase(ctx); err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
				continue
			}
			fmt.Fprintln(c.out, "All of your records were deleted.")
			continue
		}

		resp, err := sess.Send(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("Turn failed")
			fmt.Fprintf(c.out, "error: %v\n", err)
			continue
		}
		c.printTurn(resp)
	}
}

func (c *command) printTurn(resp *counselv1.TurnResponse) {
	fmt.Fprintf(c.out, "\n%s\n", resp.Text)
	if resp.Advice != "" {
		fmt.Fprintf(c.out, "\n  (%s)\n", resp.Advice)
	}
	for _, q := range resp.FollowUps {
		fmt.Fprintf(c.out, "  - %s\n", q)
	}
	for _, w := range resp.Warnings {
		fmt.Fprintf(c.out, "  ! %s\n", w)
	}
	fmt.Fprintf(c.out, "  [%s / %s]\n\n", resp.Phase, resp.Emotion)
}

func (c *command) erase(ctx context.Context, args []string) error {
	sess, err := c.session("erase", args)
	if err != nil {
		return err
	}
	if err := sess.Erase(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "erased")
	return nil
}

func (c *command) relationship(ctx context.Context, args []string) error {
	sess, err := c.session("relationship", args)
	if err != nil {
		return err
	}
	rel, err := sess.Relationship(ctx)
	if err != nil {
		return err
	}
	c.printRelationship(rel)
	return nil
}

func (c *command) printRelationship(rel *counselv1.RelationshipResponse) {
	fmt.Fprintf(c.out, "Phase:         %s\n", rel.Phase)
	fmt.Fprintf(c.out, "Trust:         %.2f\n", rel.TrustScore)
	fmt.Fprintf(c.out, "Interactions:  %d\n", rel.InteractionCount)
	if rel.NextPhase != "" {
		fmt.Fprintf(c.out, "Next phase:    %s (%.0f%%, %d more)\n", rel.NextPhase, rel.ProgressRatio*100, rel.InteractionsToNext)
	}
	fmt.Fprintf(c.out, "Openness:      %.2f\n", rel.OpennessScore)
	fmt.Fprintf(c.out, "Rapport:       %.2f\n", rel.RapportScore)
	if rel.Tone != "" {
		fmt.Fprintf(c.out, "Style:         %s / %s (confidence %.2f)\n", rel.Tone, rel.Depth, rel.ProfileConfidence)
	}
	if len(rel.TopTopics) > 0 {
		fmt.Fprintf(c.out, "Topics:        %s\n", strings.Join(rel.TopTopics, ", "))
	}
	fmt.Fprintf(c.out, "Trend:         %s\n", rel.Trend)
	fmt.Fprintf(c.out, "Episodes:      %d\n", rel.EpisodeCount)
	if !rel.LastInteractionAt.IsZero() {
		fmt.Fprintf(c.out, "Last seen:     %s\n", rel.LastInteractionAt.Local().Format(time.DateTime))
	}

	if len(rel.EmotionCounts) > 0 {
		names := make([]string, 0, len(rel.EmotionCounts))
		for name := range rel.EmotionCounts {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%d", name, rel.EmotionCounts[name]))
		}
		fmt.Fprintf(c.out, "Emotions:      %s\n", strings.Join(parts, " "))
	}
	for _, ch := range rel.PhaseHistory {
		fmt.Fprintf(c.out, "  %s  %s -> %s (%s)\n", ch.At.Local().Format(time.DateOnly), ch.From, ch.To, ch.Trigger)
	}
}

func (c *command) outreach(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("outreach", flag.ContinueOnError)
	userID := fs.String("user", "", "Only drain check-ins for this user")
	limit := fs.Int("limit", 0, "Maximum number of check-ins (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.conn.Counsel.ListOutreach(ctx, &counselv1.ListOutreachRequest{UserID: *userID, Limit: *limit})
	if err != nil {
		return err
	}
	if len(resp.Messages) == 0 {
		fmt.Fprintln(c.out, "no pending check-ins")
		return nil
	}
	c.printOutreach(resp.Messages)
	return nil
}

func (c *command) printOutreach(msgs []counselv1.OutreachMessage) {
	for _, m := range msgs {
		fmt.Fprintf(c.out, "[%s] %s (%s, priority %d): %s\n",
			m.CreatedAt.Local().Format(time.DateTime), m.UserID, m.Trigger, m.Priority, m.Text)
	}
}

func (c *command) status(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	st, err := c.conn.Counsel.Status(ctx, &counselv1.StatusRequest{})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "counseld %s (%s)\n", st.Version, st.Status)
	fmt.Fprintf(c.out, "Started:   %s (up %s)\n", st.StartedAt.Local().Format(time.DateTime), time.Since(st.StartedAt).Round(time.Second))
	fmt.Fprintf(c.out, "Provider:  %s / %s\n", st.Provider, st.Model)
	fmt.Fprintf(c.out, "Storage:   %s\n", st.Storage)
	if st.OutreachEnabled {
		fmt.Fprintf(c.out, "Outreach:  enabled, %d pending\n", st.PendingOutreach)
	} else {
		fmt.Fprintln(c.out, "Outreach:  disabled")
	}
	return nil
}
