package app

import "github.com/dkeye/voicerelay/internal/domain"

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

// Policy decides what to do with a target whose delivery failed.
type Policy interface {
	OnBackPressure(target domain.ConnID, err error) BackpressureAction
}

// DropPolicy silently drops the frame for that target.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.ConnID, error) BackpressureAction { return DropFrame }

// KickPolicy disconnects targets that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.ConnID, error) BackpressureAction { return KickMember }

func PolicyByName(name string) Policy {
	if name == "kick" {
		return KickPolicy{}
	}
	return DropPolicy{}
}
