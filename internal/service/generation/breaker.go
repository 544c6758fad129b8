package generation

import "sync/atomic"

// QuotaBreaker is a sticky, process-lifetime flag. Once tripped it never resets.
// Workers trip it; both the loop and workers read it.
type QuotaBreaker struct {
	kind    Kind
	tripped atomic.Bool
}

// NewQuotaBreaker returns an untripped breaker for kind.
func NewQuotaBreaker(kind Kind) *QuotaBreaker {
	return &QuotaBreaker{kind: kind}
}

// Kind returns the capability the breaker guards.
func (b *QuotaBreaker) Kind() Kind { return b.kind }

// Tripped reports whether a quota signal has been observed.
func (b *QuotaBreaker) Tripped() bool { return b.tripped.Load() }

// Trip sets the breaker. It returns true only for the call that tripped it.
func (b *QuotaBreaker) Trip() bool { return b.tripped.CompareAndSwap(false, true) }

// Breakers holds one breaker per capability kind.
type Breakers struct {
	byKind map[Kind]*QuotaBreaker
}

// NewBreakers returns a breaker set covering every kind.
func NewBreakers() *Breakers {
	b := &Breakers{byKind: make(map[Kind]*QuotaBreaker, 4)}
	for _, k := range []Kind{KindText, KindImage, KindMusic, KindSpeech} {
		b.byKind[k] = NewQuotaBreaker(k)
	}
	return b
}

// For returns the breaker for kind.
func (b *Breakers) For(kind Kind) *QuotaBreaker {
	return b.byKind[kind]
}

// Guard runs call unless the breaker is tripped, and trips it when call reports a
// quota signal. A tripped breaker short-circuits with QuotaExceeded without
// invoking call.
func Guard[T any](b *QuotaBreaker, call func() Result[T]) Result[T] {
	if b.Tripped() {
		return QuotaExceeded[T]()
	}
	res := call()
	if res.Status == StatusQuotaExceeded {
		b.Trip()
	}
	return res
}
