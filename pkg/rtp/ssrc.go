package rtp

import (
	"github.com/pion/randutil"
	"go.uber.org/atomic"
)

// SSRCGenerator выдает идентификаторы источников синхронизации.
//
// Значения получаются биективным перемешиванием счетчика со случайным
// ключом, поэтому в пределах 2^32 вызовов одного генератора повторов нет,
// а последовательность непредсказуема для внешнего наблюдателя.
// Генератор создается один раз на сервер и передается потребителям.
type SSRCGenerator struct {
	key     uint32
	counter atomic.Uint32
}

// NewSSRCGenerator создает генератор со случайным ключом
func NewSSRCGenerator() *SSRCGenerator {
	seed := randomSeed()
	g := &SSRCGenerator{key: uint32(seed)}
	g.counter.Store(uint32(seed >> 32))
	return g
}

// randomSeed берет ключ из криптографического источника, при его
// недоступности из генератора math/rand
func randomSeed() uint64 {
	if seed, err := randutil.CryptoUint64(); err == nil {
		return seed
	}
	return randutil.NewMathRandomGenerator().Uint64()
}

// Generate возвращает следующий SSRC. Ноль не выдается.
func (g *SSRCGenerator) Generate() uint32 {
	for {
		ssrc := mix32(g.counter.Inc() ^ g.key)
		if ssrc != 0 {
			return ssrc
		}
	}
}

// mix32 финализатор murmur3, биекция на uint32
func mix32(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
