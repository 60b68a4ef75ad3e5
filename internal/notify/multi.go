package notify

import (
	"github.com/sendrec/clipintake/internal/intake"
)

var _ intake.Observer = (*MultiObserver)(nil)

// MultiObserver fans out pipeline transitions to all registered observers
// in registration order.
type MultiObserver struct {
	observers []intake.Observer
}

func NewMultiObserver(observers ...intake.Observer) *MultiObserver {
	return &MultiObserver{observers: observers}
}

func (m *MultiObserver) Progress(slot, percent int) {
	for _, o := range m.observers {
		o.Progress(slot, percent)
	}
}

func (m *MultiObserver) Committed(clip intake.Clip) {
	for _, o := range m.observers {
		o.Committed(clip)
	}
}

func (m *MultiObserver) Rejected(slot int, message string) {
	for _, o := range m.observers {
		o.Rejected(slot, message)
	}
}

func (m *MultiObserver) Discarded(file intake.File) {
	for _, o := range m.observers {
		o.Discarded(file)
	}
}
