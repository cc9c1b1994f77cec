// Package services – BroadcastService
//
// This file implements BroadcastService, which posts the promotional message
// of a request channel to every post channel, or to a single chosen one, each
// copy carrying the referral link for that (request, post) pair. Preview
// renders the same message without sending it.
//
// Authorization and precondition failures abort before anything is sent.
// After that every post channel is attempted independently: a missing link or
// a failed send is recorded in the Report and the loop moves on. Nothing is
// retried.
package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-referral-bot/internal/domain"
	"github.com/tbourn/go-referral-bot/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ReasonNoLink is the failure reason for a post channel without a link.
const ReasonNoLink = "no link found"

// Defaults for the promotional message.
const (
	DefaultBroadcastText = "Join us! Tap the button below to open the channel."
	DefaultButtonText    = "Open channel"
)

// Report summarizes one broadcast.
type Report struct {
	SuccessCount int
	Failures     []DeliveryError
}

// Attempted returns the number of post channels the broadcast tried.
func (r *Report) Attempted() int { return r.SuccessCount + len(r.Failures) }

// BroadcastService fans a promotional post out to the post channels.
type BroadcastService struct {
	DB        *gorm.DB
	Messenger Messenger
	Links     *LinkService

	// Text is the message body.
	Text string
	// ButtonText labels the call-to-action button(s).
	ButtonText string
	// ButtonCount is how many identical link buttons each post carries.
	ButtonCount int
}

// NewBroadcastService constructs a BroadcastService with one button.
func NewBroadcastService(db *gorm.DB, m Messenger, links *LinkService) *BroadcastService {
	return &BroadcastService{
		DB:          db,
		Messenger:   m,
		Links:       links,
		Text:        DefaultBroadcastText,
		ButtonText:  DefaultButtonText,
		ButtonCount: 1,
	}
}

// Preview is the promotional post as it would be sent, together with the
// post channels it can be sent to.
type Preview struct {
	Text         string
	ButtonLabels []string
	Channels     []domain.PostChannel
}

// Authorize reports whether callerID may broadcast for requestChannelID.
func (s *BroadcastService) Authorize(ctx context.Context, requestChannelID string, callerID int64) error {
	return checkChannelAdmin(ctx, s.Messenger, requestChannelID, callerID)
}

// Preview runs the same checks as Broadcast and returns what would be sent,
// without sending anything.
func (s *BroadcastService) Preview(ctx context.Context, requestChannelID string, callerID int64) (*Preview, error) {
	ctx, span := broadcastTracer().Start(ctx, "Preview",
		trace.WithAttributes(
			attribute.String("request_channel.id", requestChannelID),
			attribute.Int64("user.id", callerID),
		),
	)
	defer span.End()

	posts, err := s.targets(ctx, requestChannelID, callerID, "")
	if err != nil {
		return nil, err
	}
	buttons := s.buttons("")
	labels := make([]string, 0, len(buttons))
	for _, b := range buttons {
		labels = append(labels, b.Text)
	}
	return &Preview{Text: s.text(), ButtonLabels: labels, Channels: posts}, nil
}

// Broadcast sends the promotional post for requestChannelID to every post
// channel. callerID must administer the request channel.
func (s *BroadcastService) Broadcast(ctx context.Context, requestChannelID string, callerID int64) (*Report, error) {
	return s.BroadcastTo(ctx, requestChannelID, callerID, "")
}

// BroadcastTo is Broadcast limited to postChannelID when it is non-empty. A
// post channel that is not registered yields ErrPostChannelNotFound.
func (s *BroadcastService) BroadcastTo(ctx context.Context, requestChannelID string, callerID int64, postChannelID string) (*Report, error) {
	ctx, span := broadcastTracer().Start(ctx, "Broadcast",
		trace.WithAttributes(
			attribute.String("request_channel.id", requestChannelID),
			attribute.Int64("user.id", callerID),
			attribute.String("post_channel.id", postChannelID),
		),
	)
	defer span.End()

	posts, err := s.targets(ctx, requestChannelID, callerID, postChannelID)
	if err != nil {
		return nil, err
	}

	rep := &Report{Failures: []DeliveryError{}}
	for _, pc := range posts {
		fail := func(reason string) {
			rep.Failures = append(rep.Failures, DeliveryError{
				ChannelID:   pc.ChannelID,
				ChannelName: pc.Name,
				Reason:      reason,
			})
		}

		link, err := s.Links.ResolveLinkForPair(ctx, requestChannelID, pc.ChannelID)
		if errors.Is(err, ErrLinkNotFound) {
			fail(ReasonNoLink)
			continue
		}
		if err != nil {
			fail(err.Error())
			continue
		}
		if err := s.Messenger.SendMessage(ctx, pc.ChannelID, s.text(), s.buttons(link)); err != nil {
			fail(err.Error())
			continue
		}
		rep.SuccessCount++
	}

	span.SetAttributes(
		attribute.Int("broadcast.success", rep.SuccessCount),
		attribute.Int("broadcast.failed", len(rep.Failures)),
	)
	if rep.SuccessCount == 0 {
		span.SetStatus(codes.Error, "no post channel reached")
	}
	return rep, nil
}

func broadcastTracer() trace.Tracer { return otel.Tracer("services/BroadcastService") }

// targets checks the caller and the request channel, then returns the post
// channels to deliver to.
func (s *BroadcastService) targets(ctx context.Context, requestChannelID string, callerID int64, postChannelID string) ([]domain.PostChannel, error) {
	if err := checkChannelAdmin(ctx, s.Messenger, requestChannelID, callerID); err != nil {
		return nil, err
	}
	if _, err := repo.GetRequestChannel(ctx, s.DB, requestChannelID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, err
	}

	if postChannelID != "" {
		id, err := normalizeChannelID(postChannelID)
		if err != nil {
			return nil, err
		}
		pc, err := repo.GetPostChannel(ctx, s.DB, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPostChannelNotFound
		}
		if err != nil {
			return nil, err
		}
		return []domain.PostChannel{*pc}, nil
	}

	posts, err := repo.ListPostChannels(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, ErrNoDestinations
	}
	return posts, nil
}

func (s *BroadcastService) text() string {
	if s.Text == "" {
		return DefaultBroadcastText
	}
	return s.Text
}

// buttons returns ButtonCount identical URL buttons; with more than one the
// labels are numbered.
func (s *BroadcastService) buttons(link string) []Button {
	n := s.ButtonCount
	if n <= 0 {
		n = 1
	}
	label := s.ButtonText
	if label == "" {
		label = DefaultButtonText
	}
	out := make([]Button, 0, n)
	for i := 0; i < n; i++ {
		text := label
		if n > 1 {
			text = fmt.Sprintf("%s %d", label, i+1)
		}
		out = append(out, Button{Text: text, URL: link})
	}
	return out
}
