package app

import (
	"github.com/dkeye/Hush/internal/config"
	"github.com/dkeye/Hush/internal/core"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	Disconnect
)

// Policy decides what happens to an endpoint whose send queue is full.
type Policy interface {
	OnBackPressure(ep core.Endpoint) BackpressureAction
}

type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.Endpoint) BackpressureAction { return DropFrame }

type DisconnectPolicy struct{}

func (DisconnectPolicy) OnBackPressure(core.Endpoint) BackpressureAction { return Disconnect }

func PolicyFor(name string) Policy {
	if name == config.SlowConsumerDisconnect {
		return DisconnectPolicy{}
	}
	return DropPolicy{}
}
