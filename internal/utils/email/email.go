package email

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/budget-service/internal/config"
	"github.com/Dan9191/budget-service/internal/export"
	"github.com/Dan9191/budget-service/internal/models"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	s := &Sender{
		cfg:    cfg,
		logger: logger,
	}
	s.send = s.sendSMTP
	return s
}

func (s *Sender) sendSMTP(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	return e.Send(addr, auth)
}

func (s *Sender) deliver(subject, body string) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{s.cfg.NotifyEmail}
	e.Subject = subject
	e.Text = []byte(body)

	if err := s.send(e); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", s.cfg.NotifyEmail, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", s.cfg.NotifyEmail, subject)
	return nil
}

// SendTransactionNotification sends a notification email for a recorded income or expense
func (s *Sender) SendTransactionNotification(tx models.Transaction, balance decimal.Decimal) error {
	subject, body := transactionMessage(tx, balance, s.cfg.Currency)
	return s.deliver(subject, body)
}

// SendDailySummary sends the income/expense totals
func (s *Sender) SendDailySummary(stats models.IncomeExpenseStats, at time.Time) error {
	subject, body := summaryMessage(stats, at, s.cfg.Currency)
	return s.deliver(subject, body)
}

func transactionMessage(tx models.Transaction, balance decimal.Decimal, currency string) (string, string) {
	amount := export.FormatAmount(tx.Amount, currency)

	var subject string
	var b strings.Builder
	b.WriteString("Hello,\n\n")
	if tx.Type == models.TypeIncome {
		subject = "Income Notification"
		fmt.Fprintf(&b, "An income of %s has been recorded.\n", amount)
	} else {
		subject = "Expense Notification"
		fmt.Fprintf(&b, "An expense of %s has been recorded.\n", amount)
	}
	fmt.Fprintf(&b,
		"Transaction: #%d\n"+
			"Description: %s\n"+
			"Transaction time: %s\n"+
			"Current balance: %s\n",
		tx.TID, tx.Description, tx.Date, export.FormatAmount(balance, currency),
	)
	b.WriteString("\nBest regards,\nBudget Service")
	return subject, b.String()
}

func summaryMessage(stats models.IncomeExpenseStats, at time.Time, currency string) (string, string) {
	subject := fmt.Sprintf("Budget Summary %s", at.Format("2006-01-02"))
	body := fmt.Sprintf(
		"Hello,\n\n"+
			"Here is your budget summary as of %s.\n\n"+
			"Transactions: %d\n"+
			"Income: %s\n"+
			"Expense: %s\n"+
			"Net: %s\n"+
			"Current balance: %s\n"+
			"\nBest regards,\nBudget Service",
		at.Format("2006-01-02 15:04:05"),
		stats.Count,
		export.FormatAmount(stats.Income, currency),
		export.FormatAmount(stats.Expense, currency),
		export.FormatAmount(stats.NetBalance, currency),
		export.FormatAmount(stats.Balance, currency),
	)
	return subject, body
}
