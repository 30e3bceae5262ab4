package ports

import "github.com/bnema/khaos-agent/internal/domain"

type Metrics interface {
	TickCompleted(loop string)
	TickFailed(loop string)
	ConnectionChanged(connected bool)
	MemoryRecords(kind domain.InteractionKind, count int)
}

type NopMetrics struct{}

func (NopMetrics) TickCompleted(string)                      {}
func (NopMetrics) TickFailed(string)                         {}
func (NopMetrics) ConnectionChanged(bool)                    {}
func (NopMetrics) MemoryRecords(domain.InteractionKind, int) {}
