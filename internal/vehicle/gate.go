package vehicle

// Gate decides whether a nitrous request turns into a boost. Request returns
// false when the gate cannot take the request right now. Otherwise resolve is
// called exactly once, now or later, with the verdict.
type Gate interface {
	Request(resolve func(ok bool)) bool
}

// InstantGate approves every request immediately.
type InstantGate struct{}

func (InstantGate) Request(resolve func(ok bool)) bool {
	resolve(true)
	return true
}
