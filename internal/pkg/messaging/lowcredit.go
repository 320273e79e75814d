package messaging

import (
	"context"
	"fmt"

	"github.com/dojopulse/dojopulse/app/models"
)

// LowCreditAlerter emails an organization when its AI credit balance drops
// below the warning threshold. Satisfies the ledger's notifier contract.
type LowCreditAlerter struct {
	mailer EmailSender
}

// NewLowCreditAlerter creates a low-credit alerter.
func NewLowCreditAlerter(mailer EmailSender) *LowCreditAlerter {
	return &LowCreditAlerter{mailer: mailer}
}

func (a *LowCreditAlerter) NotifyLowCredit(ctx context.Context, org *models.Organization, balance *models.CreditBalance) error {
	if org.Email == "" {
		return nil
	}

	subject := fmt.Sprintf("%s: AI credits running low", org.Name)
	body := fmt.Sprintf(
		"<p>Your organization has %d AI credits left (%d%% of your monthly allowance).</p>"+
			"<p>Automations keep their place in line but will pause on steps that need credits until you top up.</p>",
		balance.Balance, balance.RemainingPercent(),
	)
	return a.mailer.SendEmail(ctx, org.Email, subject, body)
}
