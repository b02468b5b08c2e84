package mapview

import "github.com/joeblew999/plat-tour/internal/service"

// Notifier receives the map's output events for the host page.
type Notifier interface {
	NavigateToDetail(category service.Category, code string)
	ProfileChanged(p service.Profile)
}

// NopNotifier discards output events.
type NopNotifier struct{}

func (NopNotifier) NavigateToDetail(service.Category, string) {}
func (NopNotifier) ProfileChanged(service.Profile)            {}

// NotifierFuncs adapts plain functions. Nil fields are skipped.
type NotifierFuncs struct {
	OnNavigate       func(category service.Category, code string)
	OnProfileChanged func(p service.Profile)
}

func (n NotifierFuncs) NavigateToDetail(category service.Category, code string) {
	if n.OnNavigate != nil {
		n.OnNavigate(category, code)
	}
}

func (n NotifierFuncs) ProfileChanged(p service.Profile) {
	if n.OnProfileChanged != nil {
		n.OnProfileChanged(p)
	}
}
