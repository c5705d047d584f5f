package app

import "github.com/dkeye/Live/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropEvent
)

// Policy decides what happens to a connection whose send queue is full.
type Policy interface {
	OnBackPressure(conn core.ConnID, ev core.Outbound) BackpressureAction
}

// KickPolicy closes slow connections; the normal disconnect path cleans up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(core.ConnID, core.Outbound) BackpressureAction {
	return KickMember
}

type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.ConnID, core.Outbound) BackpressureAction {
	return DropEvent
}

func PolicyFor(name string) Policy {
	if name == "drop" {
		return DropPolicy{}
	}
	return KickPolicy{}
}
