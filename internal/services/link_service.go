// Package services – LinkService
//
// This file implements LinkService, which fans out one referral link per post
// channel for a request channel and turns stored tokens back into deep links.
//
// A generation always replaces the whole link set of the request channel in
// one transaction, so previously shared tokens stop resolving as soon as the
// new set is visible. The set is a snapshot of the post channels at that
// moment; channels added later have no link until the next generation.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-referral-bot/internal/domain"
	"github.com/tbourn/go-referral-bot/internal/repo"
	"github.com/tbourn/go-referral-bot/internal/tokens"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DeepLinkBase is the prefix of every referral URL.
const DeepLinkBase = "https://t.me/"

// maxStartPayload is the longest /start payload Telegram delivers.
const maxStartPayload = 64

// maxTokenAttempts bounds regeneration when a token collides.
const maxTokenAttempts = 3

// TokenSource produces fresh referral tokens.
type TokenSource interface {
	Generate() (string, error)
}

// ResolvedLink is a stored referral link rendered for display.
type ResolvedLink struct {
	URL             string
	Title           string
	Token           string
	PostChannelID   string
	PostChannelName string
}

// LinkService creates and resolves referral links.
type LinkService struct {
	DB       *gorm.DB
	Identity *IdentityCache
	// Tokens defaults to crypto/rand backed generation.
	Tokens TokenSource
	Now    func() time.Time
}

// NewLinkService constructs a LinkService with the default token generator.
func NewLinkService(db *gorm.DB, id *IdentityCache) *LinkService {
	return &LinkService{DB: db, Identity: id, Tokens: &tokens.Generator{}, Now: time.Now}
}

func linkTracer() trace.Tracer { return otel.Tracer("services/LinkService") }

func (s *LinkService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *LinkService) tokenSource() TokenSource {
	if s.Tokens != nil {
		return s.Tokens
	}
	return &tokens.Generator{}
}

// DeepLink builds the referral URL for botUsername and token.
func DeepLink(botUsername, token string) string {
	return DeepLinkBase + strings.TrimPrefix(botUsername, "@") + "?start=" + url.QueryEscape(token)
}

// GenerateLinks replaces the links of requestChannelID with one fresh link
// per current post channel and returns how many were written. With no post
// channels it writes nothing and returns 0.
func (s *LinkService) GenerateLinks(ctx context.Context, requestChannelID string) (int, error) {
	ctx, span := linkTracer().Start(ctx, "GenerateLinks",
		trace.WithAttributes(attribute.String("request_channel.id", requestChannelID)))
	defer span.End()

	if _, err := repo.GetRequestChannel(ctx, s.DB, requestChannelID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, ErrNotRegistered
		}
		return 0, err
	}

	posts, err := repo.ListPostChannels(ctx, s.DB)
	if err != nil {
		return 0, err
	}
	if len(posts) == 0 {
		return 0, nil
	}

	for attempt := 1; ; attempt++ {
		links, err := s.newLinks(posts)
		if err != nil {
			return 0, err
		}
		n, err := repo.ReplaceReferralLinks(ctx, s.DB, requestChannelID, links, s.now())
		if errors.Is(err, repo.ErrDuplicate) && attempt < maxTokenAttempts {
			continue
		}
		if err != nil {
			return 0, err
		}
		span.SetAttributes(attribute.Int("links.count", n))
		return n, nil
	}
}

func (s *LinkService) newLinks(posts []domain.PostChannel) ([]repo.NewReferralLink, error) {
	gen := s.tokenSource()
	out := make([]repo.NewReferralLink, 0, len(posts))
	for _, pc := range posts {
		tok, err := gen.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}
		out = append(out, repo.NewReferralLink{
			PostChannelID: pc.ChannelID,
			Token:         tok,
			Title:         pc.Name,
		})
	}
	return out, nil
}

// ResolveLinks returns the links of requestChannelID as deep links, in the
// order they were generated.
func (s *LinkService) ResolveLinks(ctx context.Context, requestChannelID string) ([]ResolvedLink, error) {
	ctx, span := linkTracer().Start(ctx, "ResolveLinks",
		trace.WithAttributes(attribute.String("request_channel.id", requestChannelID)))
	defer span.End()

	links, err := repo.ListReferralLinks(ctx, s.DB, requestChannelID)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return []ResolvedLink{}, nil
	}
	self, err := s.Identity.Get(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ResolvedLink, 0, len(links))
	for _, l := range links {
		out = append(out, ResolvedLink{
			URL:             DeepLink(self.Username, l.Token),
			Title:           l.Title,
			Token:           l.Token,
			PostChannelID:   l.PostChannelID,
			PostChannelName: l.PostChannel.Name,
		})
	}
	return out, nil
}

// ResolveLinkForPair returns the deep link for one (request, post) pair, or
// ErrLinkNotFound when that pair has no link.
func (s *LinkService) ResolveLinkForPair(ctx context.Context, requestChannelID, postChannelID string) (string, error) {
	l, err := repo.GetReferralLink(ctx, s.DB, requestChannelID, postChannelID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrLinkNotFound
	}
	if err != nil {
		return "", err
	}
	self, err := s.Identity.Get(ctx)
	if err != nil {
		return "", err
	}
	return DeepLink(self.Username, l.Token), nil
}

// ResolveToken returns the link a /start token points at, with its request
// and post channel loaded, or ErrLinkNotFound.
func (s *LinkService) ResolveToken(ctx context.Context, token string) (*domain.ReferralLink, error) {
	ctx, span := linkTracer().Start(ctx, "ResolveToken")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxStartPayload {
		return nil, ErrLinkNotFound
	}
	l, err := repo.GetReferralLinkByToken(ctx, s.DB, token)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrLinkNotFound
	}
	return l, err
}
