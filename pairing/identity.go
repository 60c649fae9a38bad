package pairing

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/msoodb/nrf24"
)

// BoardID identifies a board on the air. It is derived once from a
// hardware-unique id.
type BoardID [4]byte

func (id BoardID) String() string {
	return fmt.Sprintf("%02X%02X%02X%02X", id[0], id[1], id[2], id[3])
}

// AddressPrefix is the first byte of every derived board address.
const AddressPrefix = 0x01

// IdentityFrom derives the board id (FNV-1a of uid, big-endian) and the
// board's private address {0x01, id...}.
func IdentityFrom(uid []byte) (BoardID, nrf24.Address) {
	h := fnv.New32a()
	h.Write(uid)

	var id BoardID
	binary.BigEndian.PutUint32(id[:], h.Sum32())

	addr := nrf24.Address{AddressPrefix}
	copy(addr[1:], id[:])
	return id, addr
}
