package blobstore

import (
	"bytes"

	"github.com/klauspost/reedsolomon"
	"github.com/pkg/errors"
)

// parityCodec is the optional Reed-Solomon parity layer (spec.md §4.F
// describes no parity scheme; this is an enrichment gated behind
// Store.WithParity, default-off — see DESIGN.md). Every write recomputes
// parity shards over the padded blob; every read recomputes them over the
// bytes read back and compares against the recorded shards, so Store.Read
// can log silent bit rot. Nothing is reconstructed from the parity shards.
type parityCodec struct {
	enc          reedsolomon.Encoder
	dataShards   int
	parityShards int
	stored       map[string][][]byte // name -> parity shards only
}

func (p *parityCodec) shardSize(total int) int {
	size := (total + p.dataShards - 1) / p.dataShards
	if size == 0 {
		size = 1
	}
	return size
}

func (p *parityCodec) split(data []byte) [][]byte {
	size := p.shardSize(len(data))
	shards := make([][]byte, p.dataShards+p.parityShards)
	for i := 0; i < p.dataShards; i++ {
		shards[i] = make([]byte, size)
		lo := i * size
		if lo < len(data) {
			hi := lo + size
			if hi > len(data) {
				hi = len(data)
			}
			copy(shards[i], data[lo:hi])
		}
	}
	for i := p.dataShards; i < len(shards); i++ {
		shards[i] = make([]byte, size)
	}
	return shards
}

func (p *parityCodec) record(name string, data []byte) {
	shards := p.split(data)
	if err := p.enc.Encode(shards); err != nil {
		return // parity is best-effort; a failed encode just skips this write's protection
	}
	if p.stored == nil {
		p.stored = make(map[string][][]byte)
	}
	parity := make([][]byte, p.parityShards)
	copy(parity, shards[p.dataShards:])
	p.stored[name] = parity
}

// verifyNamed recomputes parity for data and compares it against whatever was
// last recorded for name.
func (p *parityCodec) verifyNamed(name string, data []byte) error {
	want, ok := p.stored[name]
	if !ok {
		return nil // no parity recorded yet (e.g. pre-existing blob); nothing to check
	}
	shards := p.split(data)
	if err := p.enc.Encode(shards); err != nil {
		return errors.Wrap(err, "recomputing parity")
	}
	for i, ps := range want {
		if !bytes.Equal(ps, shards[p.dataShards+i]) {
			return errors.Errorf("parity mismatch on shard %d", i)
		}
	}
	return nil
}

