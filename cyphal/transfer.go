package cyphal

import "github.com/cubesat-core/flightsw/memsys"

// RxTransfer pairs a Transfer with the allocator Block backing its payload,
// wrapped in shared ownership so the RX path (fan-out to multiple
// subscribers) and the loop manager can each hold a reference without
// racing to free the payload twice (spec §3, §4.A).
type RxTransfer = memsys.Shared[Transfer]

// NewRxTransfer builds a shared-owned Transfer whose deleter frees its
// payload Block back through alloc — the "payload-owning deleter" spec
// §4.A calls out as what prevents the receive path from leaking.
func NewRxTransfer(alloc *memsys.Allocator, block *memsys.Block, meta Metadata, tsUsec uint64) *RxTransfer {
	var payload []byte
	if block != nil {
		payload = block.Bytes
	}
	t := &Transfer{
		Metadata:      meta,
		TimestampUsec: tsUsec,
		Payload:       payload,
	}
	return memsys.NewShared(t, func(*Transfer) {
		if block != nil {
			alloc.Free(block)
		}
	})
}
