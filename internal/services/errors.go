// Package services defines the business logic for the channel registry,
// referral-link generation and broadcasting. This file centralizes the
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// Translation into user-facing replies is performed by the bot layer.
package services

import (
	"errors"
	"fmt"
)

// Authorization errors.
var (
	// ErrUnauthorized is returned when the caller is not the owner.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrOwnerNotSet is returned by owner-only operations while no owner has
	// been configured. It matches ErrUnauthorized with errors.Is.
	ErrOwnerNotSet = fmt.Errorf("owner not set: %w", ErrUnauthorized)

	// ErrForbidden is returned when the caller is not an administrator or the
	// creator of the channel the action targets.
	ErrForbidden = errors.New("forbidden: channel admins only")

	// ErrPermissionCheck is returned when the caller's membership could not be
	// looked up.
	ErrPermissionCheck = errors.New("permission check failed")
)

// Registry and link errors.
var (
	// ErrChannelResolution is returned when a channel cannot be resolved or
	// the bot cannot administer it.
	ErrChannelResolution = errors.New("channel resolution failed")

	// ErrNotRegistered is returned for actions on a request channel that was
	// never registered.
	ErrNotRegistered = errors.New("request channel not registered")

	// ErrNoDestinations is returned by Broadcast when no post channels exist.
	ErrNoDestinations = errors.New("no post channels configured")

	// ErrPostChannelNotFound is returned by a targeted broadcast when the
	// chosen post channel is not registered.
	ErrPostChannelNotFound = errors.New("post channel not found")

	// ErrLinkNotFound is returned when no referral link exists for a pair or
	// token.
	ErrLinkNotFound = errors.New("referral link not found")

	// ErrInvalidChannelID is returned for an empty or malformed channel id.
	ErrInvalidChannelID = errors.New("invalid channel id")
)

// DeliveryError describes one post channel a broadcast could not reach.
type DeliveryError struct {
	ChannelID   string
	ChannelName string
	Reason      string
}

func (e DeliveryError) Error() string {
	return fmt.Sprintf("%s: %s", e.ChannelName, e.Reason)
}
