package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/dojopulse/dojopulse/app/models"
	"github.com/dojopulse/dojopulse/app/repository"
	"github.com/dojopulse/dojopulse/internal/pkg/credits"
	"github.com/dojopulse/dojopulse/internal/pkg/messaging"
	counter "github.com/dojopulse/dojopulse/internal/pkg/metrics/counter"
)

// defaultCallSeconds is assumed for phone steps without a configured
// estimate when computing the upfront credit cost.
const defaultCallSeconds = 120

// recipient is the resolved contact target of a step.
type recipient struct {
	Name  string
	Phone string
	Email string
}

// Dispatcher executes one concrete automation step: it prices the action,
// charges the credit ledger, performs the send, and compensates the ledger
// when the send fails after the charge.
type Dispatcher struct {
	ledger   *credits.Ledger
	sms      messaging.SMSSender
	email    messaging.EmailSender
	phone    messaging.PhoneCaller
	leads    repository.LeadRepository
	students repository.StudentRepository
}

// NewDispatcher creates an action dispatcher.
func NewDispatcher(
	ledger *credits.Ledger,
	sms messaging.SMSSender,
	email messaging.EmailSender,
	phone messaging.PhoneCaller,
	leads repository.LeadRepository,
	students repository.StudentRepository,
) *Dispatcher {
	return &Dispatcher{
		ledger:   ledger,
		sms:      sms,
		email:    email,
		phone:    phone,
		leads:    leads,
		students: students,
	}
}

// Dispatch executes the given step for the enrolled entity. A nil return
// means the action happened and was paid for; errors are classified
// Retryable or Fatal for the scheduler. Credits are never consumed for work
// that did not happen: any post-deduction send failure is refunded before
// the error is reported.
func (d *Dispatcher) Dispatch(ctx context.Context, enrollment *models.AutomationEnrollment, step *models.AutomationStep) error {
	if step.ActionType == models.ActionWait {
		// Pure delay marker; nothing to send, nothing to charge.
		return nil
	}

	to, err := d.resolveRecipient(enrollment)
	if err != nil {
		return err
	}

	task, quantity := taskForStep(step)
	cost := int64(credits.CostFor(task, quantity))

	result, err := d.ledger.Deduct(ctx, credits.DeductInput{
		OrganizationID: enrollment.OrganizationID,
		Amount:         cost,
		TaskType:       task,
		Description:    fmt.Sprintf("automation step %d (%s)", step.Position, step.ActionType),
		RelatedType:    enrollment.EntityType,
		RelatedID:      enrollment.EntityID,
	})
	if err != nil {
		if errors.Is(err, credits.ErrInsufficientCredits) {
			// Out of credits blocks automation progress without cancelling
			// it; the low-credit notification path has already been taken
			// by the ledger.
			return Retryable(err)
		}
		// Ledger infrastructure failure: nothing was charged, try later.
		return Retryable(err)
	}

	actualSeconds, err := d.send(ctx, step, to)
	if err != nil {
		if _, rerr := d.ledger.Refund(ctx, enrollment.OrganizationID, cost, result.TransactionUUID,
			fmt.Sprintf("refund: %s step %d not delivered", step.ActionType, step.Position)); rerr != nil {
			// The refund itself failing is an infrastructure problem; keep
			// the enrollment retryable so no step is silently dropped.
			log.Errorf("[Dispatcher] Refund of %d credits for org %d failed: %v", cost, enrollment.OrganizationID, rerr)
			return Retryable(rerr)
		}
		if messaging.IsRetryable(err) {
			return Retryable(err)
		}
		return Fatal(err)
	}

	// Phone calls are charged from the estimate upfront; once the gateway
	// reports the real duration the difference is settled.
	if step.ActionType == models.ActionAIPhoneCall && actualSeconds > 0 {
		cost = d.settleCallCost(ctx, enrollment, step, cost, actualSeconds, result.TransactionUUID)
	}

	counter.IncCreditsUsed(enrollment.OrganizationID, cost)
	counter.IncMessagesSent(enrollment.OrganizationID)
	return nil
}

// send performs the provider call for the step's action type. For phone
// calls it returns the duration the gateway reported, 0 otherwise.
func (d *Dispatcher) send(ctx context.Context, step *models.AutomationStep, to recipient) (int, error) {
	body := renderTemplate(step.Body, to)

	switch step.ActionType {
	case models.ActionSendSMS:
		if to.Phone == "" {
			return 0, &messaging.SendError{Provider: "sms", Retryable: false, Err: fmt.Errorf("recipient has no phone number")}
		}
		_, err := d.sms.SendSMS(ctx, to.Phone, body)
		return 0, err
	case models.ActionSendEmail:
		if to.Email == "" {
			return 0, &messaging.SendError{Provider: "smtp", Retryable: false, Err: fmt.Errorf("recipient has no email address")}
		}
		return 0, d.email.SendEmail(ctx, to.Email, renderTemplate(step.Subject, to), body)
	case models.ActionAIPhoneCall:
		if to.Phone == "" {
			return 0, &messaging.SendError{Provider: "phone", Retryable: false, Err: fmt.Errorf("recipient has no phone number")}
		}
		_, seconds, err := d.phone.PlaceCall(ctx, to.Phone, body)
		return seconds, err
	default:
		return 0, &messaging.SendError{Provider: "dispatcher", Retryable: false, Err: fmt.Errorf("unknown action type %q", step.ActionType)}
	}
}

// settleCallCost reconciles the upfront estimate-based charge of a phone
// step against the duration the call actually ran. Returns the credits the
// step ended up costing.
func (d *Dispatcher) settleCallCost(ctx context.Context, enrollment *models.AutomationEnrollment, step *models.AutomationStep, charged int64, actualSeconds int, txUUID string) int64 {
	actual := int64(credits.CostFor(credits.TaskPhoneCall, actualSeconds))
	switch {
	case actual < charged:
		if _, err := d.ledger.Refund(ctx, enrollment.OrganizationID, charged-actual, txUUID,
			fmt.Sprintf("call settlement: step %d ran %ds, shorter than estimated", step.Position, actualSeconds)); err != nil {
			log.Errorf("[Dispatcher] Call settlement refund of %d credits for org %d failed: %v",
				charged-actual, enrollment.OrganizationID, err)
			return charged
		}
	case actual > charged:
		if _, err := d.ledger.Deduct(ctx, credits.DeductInput{
			OrganizationID: enrollment.OrganizationID,
			Amount:         actual - charged,
			TaskType:       credits.TaskPhoneCall,
			Description:    fmt.Sprintf("call settlement: step %d ran %ds over the estimate", step.Position, actualSeconds),
			RelatedType:    enrollment.EntityType,
			RelatedID:      enrollment.EntityID,
		}); err != nil {
			// The call already happened; a failed settlement charge must not
			// fail the step.
			log.Warnf("[Dispatcher] Call settlement charge of %d credits for org %d failed: %v",
				actual-charged, enrollment.OrganizationID, err)
			return charged
		}
	}
	return actual
}

// resolveRecipient loads the enrolled entity and checks it may still be
// contacted. A missing or unreachable entity is a fatal dispatch error.
func (d *Dispatcher) resolveRecipient(enrollment *models.AutomationEnrollment) (recipient, error) {
	switch enrollment.EntityType {
	case models.EntityTypeLead:
		lead, err := d.leads.GetByID(enrollment.OrganizationID, enrollment.EntityID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return recipient{}, Fatal(fmt.Errorf("lead %d no longer exists", enrollment.EntityID))
			}
			return recipient{}, Retryable(err)
		}
		if !lead.IsReachable() {
			return recipient{}, Fatal(fmt.Errorf("lead %d is not reachable (status %s)", lead.ID, lead.Status))
		}
		return recipient{Name: lead.FullName(), Phone: lead.Phone, Email: lead.Email}, nil

	case models.EntityTypeStudent:
		student, err := d.students.GetByID(enrollment.OrganizationID, enrollment.EntityID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return recipient{}, Fatal(fmt.Errorf("student %d no longer exists", enrollment.EntityID))
			}
			return recipient{}, Retryable(err)
		}
		if !student.IsReachable() {
			return recipient{}, Fatal(fmt.Errorf("student %d is not reachable (status %s)", student.ID, student.Status))
		}
		return recipient{Name: student.FullName(), Phone: student.Phone, Email: student.Email}, nil

	default:
		return recipient{}, Fatal(fmt.Errorf("unknown entity type %q", enrollment.EntityType))
	}
}

// taskForStep maps a step to its credit task type and scaling quantity.
func taskForStep(step *models.AutomationStep) (credits.TaskType, int) {
	switch step.ActionType {
	case models.ActionSendSMS:
		return credits.TaskSMS, 0
	case models.ActionSendEmail:
		return credits.TaskEmail, 0
	case models.ActionAIPhoneCall:
		seconds := step.EstimatedCallSeconds
		if seconds <= 0 {
			seconds = defaultCallSeconds
		}
		return credits.TaskPhoneCall, seconds
	default:
		return credits.TaskAutomation, 1
	}
}

// renderTemplate substitutes recipient placeholders in message templates.
func renderTemplate(tpl string, to recipient) string {
	r := strings.NewReplacer(
		"{{name}}", to.Name,
		"{{first_name}}", firstWord(to.Name),
	)
	return r.Replace(tpl)
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}
