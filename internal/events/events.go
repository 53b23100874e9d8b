package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/aqylal/apiserver/types"
)

// RoleChangedChannel is the broker channel role-change events go to.
// Downstream systems holding copies of user ids (gradebooks, exports)
// listen here to learn about relocations.
const RoleChangedChannel = "user.role.changed"

// Backend is the broker-agnostic operation set the bus needs.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Bus publishes domain events over a configured backend.
type Bus struct {
	backend Backend
}

// NewBus constructs a Bus over the provided backend.
func NewBus(backend Backend) *Bus {
	return &Bus{backend: backend}
}

// PublishRoleChange serializes the event and sends it to the role-change
// channel. The old and new ids ride along as attributes for consumers
// that filter without unmarshaling.
func (b *Bus) PublishRoleChange(ctx context.Context, event types.RoleChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	attrs := map[string]string{
		"old_user_id": strconv.Itoa(event.OldUserID),
		"new_user_id": strconv.Itoa(event.NewUserID),
		"new_role":    types.RoleName(event.NewRoleID),
	}
	_, err = b.backend.Publish(ctx, RoleChangedChannel, data, attrs)
	return err
}

// Close closes the underlying backend.
func (b *Bus) Close() error {
	return b.backend.Close()
}
