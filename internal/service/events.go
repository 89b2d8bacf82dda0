package service

import (
	"context"

	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/queue"
)

// BookingPublisher announces settled bookings.
type BookingPublisher interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// AvailabilityPublisher streams slot availability flips.
type AvailabilityPublisher interface {
	PublishAvailability(ctx context.Context, changes []model.AvailabilityChange) error
}
