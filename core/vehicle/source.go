package vehicle

import (
	"context"

	"github.com/mkarlsen/tesla2mqtt/core/model"
)

// Source yields car state and accepts commands. Implementations are already
// authenticated via a pre-provisioned credential cache and must bound every
// call with the context deadline.
type Source interface {
	// FetchState returns the current vehicle snapshot. It fails with
	// ErrAsleep when the vehicle is not online, ErrUnreachable on transport
	// problems and ErrUnauthorized when the credential is rejected.
	FetchState(ctx context.Context) (model.VehicleState, error)

	// SendCommand executes a validated command on the vehicle. Same error
	// taxonomy as FetchState plus ErrRejected for arguments the vehicle
	// refuses.
	SendCommand(ctx context.Context, req model.CommandRequest) error

	// Wake asks the vehicle to leave its low-power state. It returns once
	// the request is accepted, not once the vehicle is awake.
	Wake(ctx context.Context) error
}
