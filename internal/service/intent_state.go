package service

import (
	"fmt"

	"github.com/cs-store/internal/constants"
)

// 支付意图状态流转表，未列出的状态为终态
var intentTransitions = map[string]map[string]struct{}{
	constants.IntentStatusCreated: {
		constants.IntentStatusGatewayOrderCreated: {},
		constants.IntentStatusFailed:              {},
		constants.IntentStatusCancelled:           {},
		constants.IntentStatusExpired:             {},
	},
	constants.IntentStatusGatewayOrderCreated: {
		constants.IntentStatusCaptured:  {},
		constants.IntentStatusFailed:    {},
		constants.IntentStatusCancelled: {},
		constants.IntentStatusExpired:   {},
	},
}

// CanTransitionIntent 判断支付意图能否从 from 流转到 to
func CanTransitionIntent(from, to string) bool {
	targets, ok := intentTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// AssertIntentTransition 校验状态流转，非法时返回 KindInvalidTransition 错误
func AssertIntentTransition(from, to string) error {
	if CanTransitionIntent(from, to) {
		return nil
	}
	return transitionConflict(from, to)
}

func transitionConflict(from, to string) *Error {
	return wrapError(KindInvalidTransition, ErrInvalidTransition.Message, fmt.Errorf("%s -> %s", from, to))
}

// IsIntentTerminal 是否为终态
func IsIntentTerminal(status string) bool {
	_, ok := intentTransitions[status]
	return !ok
}
