//go:build !tinygo

package pairing

import (
	"fmt"

	"github.com/denisbrodbeck/machineid"
)

const appID = "nrf24-pairing"

// MachineUID returns a stable per-host id to feed IdentityFrom. The raw
// machine id is hashed with an application key so it never goes on the air.
func MachineUID() ([]byte, error) {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine id: %w", err)
	}
	return []byte(id), nil
}
