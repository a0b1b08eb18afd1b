package router

import (
	"context"

	"github.com/nerfedge/spatialsync/common/types"
)

//go:generate mockgen -typed -package=router -destination=./mocks.go -source=./interface.go

// Transport carries encoded envelopes between the devices of a session.
// Broadcast delivers one frame to every other participant, received frames
// come back through Router.HandleIncoming.
type Transport interface {
	Name() string
	Broadcast(ctx context.Context, data []byte) error
	Close() error
}

// Handler consumes decoded messages of a single type.
type Handler func(ctx context.Context, msg *types.SyncMessage) error
