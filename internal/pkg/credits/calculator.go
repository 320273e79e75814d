package credits

// TaskType identifies a credit-consuming AI action.
type TaskType string

const (
	TaskChat         TaskType = "chat"
	TaskSMS          TaskType = "sms"
	TaskEmail        TaskType = "email"
	TaskPhoneCall    TaskType = "ai_phone_call"
	TaskAutomation   TaskType = "automation"
	TaskDataAnalysis TaskType = "data_analysis"
)

// Fixed task costs in credits.
const (
	CostChat         = 1
	CostSMS          = 1
	CostEmail        = 2
	CostDataAnalysis = 3
)

// Phone call pricing: flat up to the base duration, then linear (floored)
// up to the cap.
const (
	phoneBaseCost    = 8
	phoneMaxCost     = 15
	phoneBaseSeconds = 120
	phoneMaxSeconds  = 600
)

// Automation run pricing: flat up to the base step count, then linear
// (floored) up to the cap.
const (
	automationBaseCost  = 5
	automationMaxCost   = 10
	automationBaseSteps = 3
	automationMaxSteps  = 10
)

// PhoneCallCost returns the credit cost of an AI phone call of the given
// duration. Monotonic non-decreasing in duration, total for any input.
func PhoneCallCost(durationSeconds int) int {
	if durationSeconds <= phoneBaseSeconds {
		return phoneBaseCost
	}
	if durationSeconds >= phoneMaxSeconds {
		return phoneMaxCost
	}
	elapsed := durationSeconds - phoneBaseSeconds
	span := phoneMaxSeconds - phoneBaseSeconds
	return phoneBaseCost + elapsed*(phoneMaxCost-phoneBaseCost)/span
}

// AutomationCost returns the credit cost of running an automation with the
// given number of steps. Monotonic non-decreasing in step count.
func AutomationCost(stepCount int) int {
	if stepCount <= automationBaseSteps {
		return automationBaseCost
	}
	if stepCount >= automationMaxSteps {
		return automationMaxCost
	}
	extra := stepCount - automationBaseSteps
	span := automationMaxSteps - automationBaseSteps
	return automationBaseCost + extra*(automationMaxCost-automationBaseCost)/span
}

// CostFor maps a task type and its scaling quantity (call seconds for phone
// calls, step count for automations, ignored otherwise) to a credit cost.
func CostFor(task TaskType, quantity int) int {
	switch task {
	case TaskChat:
		return CostChat
	case TaskSMS:
		return CostSMS
	case TaskEmail:
		return CostEmail
	case TaskDataAnalysis:
		return CostDataAnalysis
	case TaskPhoneCall:
		return PhoneCallCost(quantity)
	case TaskAutomation:
		return AutomationCost(quantity)
	default:
		// Unknown task types are charged the minimum so nothing runs free.
		return 1
	}
}
