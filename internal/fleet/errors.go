package fleet

import "errors"

// Sentinel errors for fleet operations.
var (
	// ErrDeviceNotFound indicates no device matches the given ID.
	ErrDeviceNotFound = errors.New("fleet: device not found")

	// ErrGatewayNotFound indicates no gateway matches the given ID.
	ErrGatewayNotFound = errors.New("fleet: gateway not found")

	// ErrDeviceExists indicates a device with the same EUI already
	// exists in the organisation.
	ErrDeviceExists = errors.New("fleet: device already exists")

	// ErrGatewayExists indicates a gateway with the same EUI already
	// exists in the organisation.
	ErrGatewayExists = errors.New("fleet: gateway already exists")

	// ErrInvalidEUI indicates the identifier is not a 16-hex-digit EUI.
	ErrInvalidEUI = errors.New("fleet: invalid EUI")

	// ErrAlreadyArchived indicates the entity is already retired.
	ErrAlreadyArchived = errors.New("fleet: entity already archived")
)
