// Package services – RegistryService
//
// This file implements RegistryService, which guards and maintains the
// channel registry: the singleton owner, the owner-managed list of post
// channels, and the request channels registered by their own admins.
//
// Owner-gated operations return ErrUnauthorized for any other caller and
// ErrOwnerNotSet while no owner exists. Channel-admin-gated operations ask
// the Messenger for the caller's role and return ErrForbidden or
// ErrPermissionCheck.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// carry the caller and channel identifiers.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-referral-bot/internal/domain"
	"github.com/tbourn/go-referral-bot/internal/repo"
	"github.com/tbourn/go-referral-bot/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrBotNotAdmin is returned by AddPostChannel when the bot itself is not an
// administrator of the channel. It matches ErrChannelResolution.
var ErrBotNotAdmin = fmt.Errorf("bot is not an admin there: %w", ErrChannelResolution)

// RegistryService provides owner and channel registry operations.
type RegistryService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Messenger resolves chats and membership.
	Messenger Messenger
	// Identity supplies the bot's own user id.
	Identity *IdentityCache
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// NewRegistryService constructs a RegistryService.
func NewRegistryService(db *gorm.DB, m Messenger, id *IdentityCache) *RegistryService {
	return &RegistryService{DB: db, Messenger: m, Identity: id, Now: time.Now}
}

func (s *RegistryService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func registryTracer() trace.Tracer { return otel.Tracer("services/RegistryService") }

// SetOwner stores userID as the owner. The previous owner, if any, is
// replaced. Callers gate this behind a bootstrap secret or the CLI.
func (s *RegistryService) SetOwner(ctx context.Context, userID int64) error {
	ctx, span := registryTracer().Start(ctx, "SetOwner",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	if userID == 0 {
		return ErrUnauthorized
	}
	_, err := repo.UpsertOwner(ctx, s.DB, strconv.FormatInt(userID, 10))
	return err
}

// SeedOwner stores userID as the owner only when none exists yet.
func (s *RegistryService) SeedOwner(ctx context.Context, userID int64) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	return repo.SeedOwner(ctx, s.DB, strconv.FormatInt(userID, 10))
}

// Owner returns the stored owner or ErrOwnerNotSet.
func (s *RegistryService) Owner(ctx context.Context) (*domain.Owner, error) {
	o, err := repo.GetOwner(ctx, s.DB)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrOwnerNotSet
	}
	return o, err
}

// IsOwner reports whether userID is the current owner. No owner means false.
func (s *RegistryService) IsOwner(ctx context.Context, userID int64) (bool, error) {
	err := s.requireOwner(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrUnauthorized):
		return false, nil
	default:
		return false, err
	}
}

func (s *RegistryService) requireOwner(ctx context.Context, callerID int64) error {
	o, err := repo.GetOwner(ctx, s.DB)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrOwnerNotSet
	}
	if err != nil {
		return err
	}
	if o.UserID != strconv.FormatInt(callerID, 10) {
		return ErrUnauthorized
	}
	return nil
}

// AddPostChannel registers channelID as a broadcast destination and returns
// its display name. The caller must be the owner, the chat must resolve,
// and the bot must administer it. Re-adding overwrites the name and time.
func (s *RegistryService) AddPostChannel(ctx context.Context, callerID int64, channelID string) (string, error) {
	ctx, span := registryTracer().Start(ctx, "AddPostChannel",
		trace.WithAttributes(
			attribute.Int64("user.id", callerID),
			attribute.String("channel.id", channelID),
		),
	)
	defer span.End()

	if err := s.requireOwner(ctx, callerID); err != nil {
		return "", err
	}
	channelID, err := normalizeChannelID(channelID)
	if err != nil {
		return "", err
	}

	info, err := s.Messenger.ResolveChat(ctx, channelID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChannelResolution, err)
	}
	// Store the numeric id so @username and -100… forms map to one row.
	key := channelID
	if info.ID != "" {
		key = info.ID
	}

	self, err := s.Identity.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChannelResolution, err)
	}
	role, err := s.Messenger.GetMembership(ctx, key, self.ID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBotNotAdmin, err)
	}
	if !role.IsAdmin() {
		return "", ErrBotNotAdmin
	}

	name := normalizeName(info.Title)
	if name == "" {
		name = key
	}
	if _, err := repo.UpsertPostChannel(ctx, s.DB, key, name, s.now()); err != nil {
		return "", err
	}
	return name, nil
}

// ListPostChannels returns every post channel in insertion order. An empty
// slice is a valid answer, distinct from ErrOwnerNotSet.
func (s *RegistryService) ListPostChannels(ctx context.Context, callerID int64) ([]domain.PostChannel, error) {
	ctx, span := registryTracer().Start(ctx, "ListPostChannels",
		trace.WithAttributes(attribute.Int64("user.id", callerID)))
	defer span.End()

	if err := s.requireOwner(ctx, callerID); err != nil {
		return nil, err
	}
	return repo.ListPostChannels(ctx, s.DB)
}

// ListPostChannelsPage returns one page of post channels and the total count.
// It applies defaults for invalid page/pageSize.
func (s *RegistryService) ListPostChannelsPage(ctx context.Context, callerID int64, page, pageSize int) ([]domain.PostChannel, int64, error) {
	ctx, span := registryTracer().Start(ctx, "ListPostChannelsPage",
		trace.WithAttributes(
			attribute.Int64("user.id", callerID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if err := s.requireOwner(ctx, callerID); err != nil {
		return nil, 0, err
	}
	_, size, offset := utils.Page(page, pageSize, 10)

	total, err := repo.CountPostChannels(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.PostChannel{}, 0, nil
	}
	items, err := repo.ListPostChannelsPage(ctx, s.DB, offset, size)
	return items, total, err
}

// RemovePostChannel deletes a post channel together with every referral
// link pointing at it. Removing an unknown id is a no-op; removed reports
// whether a row existed. The returned name is empty when nothing was removed.
func (s *RegistryService) RemovePostChannel(ctx context.Context, callerID int64, channelID string) (name string, removed bool, err error) {
	ctx, span := registryTracer().Start(ctx, "RemovePostChannel",
		trace.WithAttributes(
			attribute.Int64("user.id", callerID),
			attribute.String("channel.id", channelID),
		),
	)
	defer span.End()

	if err := s.requireOwner(ctx, callerID); err != nil {
		return "", false, err
	}
	if pc, err := repo.GetPostChannel(ctx, s.DB, channelID); err == nil {
		name = pc.Name
	} else if !errors.Is(err, repo.ErrNotFound) {
		return "", false, err
	}
	removed, err = repo.DeletePostChannel(ctx, s.DB, channelID)
	if err != nil {
		return "", false, err
	}
	if !removed {
		name = ""
	}
	return name, removed, nil
}

// RegisterRequestChannel records channelID as a request channel. callerID
// must be an administrator or the creator of that channel.
func (s *RegistryService) RegisterRequestChannel(ctx context.Context, channelID, displayName string, callerID int64) (*domain.RequestChannel, error) {
	ctx, span := registryTracer().Start(ctx, "RegisterRequestChannel",
		trace.WithAttributes(
			attribute.Int64("user.id", callerID),
			attribute.String("channel.id", channelID),
		),
	)
	defer span.End()

	channelID, err := normalizeChannelID(channelID)
	if err != nil {
		return nil, err
	}
	if err := checkChannelAdmin(ctx, s.Messenger, channelID, callerID); err != nil {
		return nil, err
	}
	name := normalizeName(displayName)
	if name == "" {
		name = channelID
	}
	return repo.UpsertRequestChannel(ctx, s.DB, channelID, name, s.now())
}

// Stats returns registry counts. Owner only.
func (s *RegistryService) Stats(ctx context.Context, callerID int64) (repo.Stats, error) {
	ctx, span := registryTracer().Start(ctx, "Stats",
		trace.WithAttributes(attribute.Int64("user.id", callerID)))
	defer span.End()

	if err := s.requireOwner(ctx, callerID); err != nil {
		return repo.Stats{}, err
	}
	return repo.RegistryStats(ctx, s.DB)
}

// checkChannelAdmin verifies that userID administers chatID.
func checkChannelAdmin(ctx context.Context, m Messenger, chatID string, userID int64) error {
	role, err := m.GetMembership(ctx, chatID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionCheck, err)
	}
	if !role.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
