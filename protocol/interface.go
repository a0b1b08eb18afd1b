package protocol

import (
	"context"

	"github.com/nerfedge/spatialsync/common/types"
	"github.com/nerfedge/spatialsync/router"
)

//go:generate mockgen -typed -package=protocol -destination=./mocks.go -source=./interface.go

// Router is the message path between the session and its transports.
type Router interface {
	Register(mtype types.MessageType, handler router.Handler)
	AddTransport(t router.Transport)
	Start()
	HandleIncoming(ctx context.Context, source string, data []byte) error
	Publish(ctx context.Context, msg *types.SyncMessage) error
	ForgetSender(device string)
	Close() error
}
