package ports

import "github.com/bnema/multisession/internal/domain"

type Notifier interface {
	Notify(id domain.AccountID, event domain.StatusEvent)
}

type NopNotifier struct{}

func (NopNotifier) Notify(domain.AccountID, domain.StatusEvent) {}

type NotifierFunc func(id domain.AccountID, event domain.StatusEvent)

func (f NotifierFunc) Notify(id domain.AccountID, event domain.StatusEvent) {
	f(id, event)
}
