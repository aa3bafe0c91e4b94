package provider

import (
	"context"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

// DisabledSource stands in for a source switched off in the sources file. It answers
// every lookup with a failure and makes no calls.
type DisabledSource struct{}

const disabledMessage = "Source disabled"

func (DisabledSource) LookupIP(context.Context, string) domain.LookupOutcome {
	return domain.FailedMessage(disabledMessage)
}

func (DisabledSource) LookupDomain(context.Context, string) domain.LookupOutcome {
	return domain.FailedMessage(disabledMessage)
}

func (DisabledSource) LookupURL(context.Context, string) domain.LookupOutcome {
	return domain.FailedMessage(disabledMessage)
}

func (DisabledSource) LookupHash(context.Context, string) domain.LookupOutcome {
	return domain.FailedMessage(disabledMessage)
}

func (DisabledSource) AnalyzeURL(context.Context, string) domain.LookupOutcome {
	return domain.FailedMessage(disabledMessage)
}
