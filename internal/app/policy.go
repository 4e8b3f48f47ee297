package app

import (
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// SimplePolicy kicks slow subscribers; clients resume from their last
// sequence number.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(session domain.SessionID, subscriber string) core.BackpressureAction {
	return core.KickSubscriber
}
