package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/mail"
	"strings"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/alerts"
)

// ErrNoRecipients is returned when an alert has nobody to go to.
var ErrNoRecipients = errors.New("notify: no recipients configured")

// Message is a plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Mailer sends a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Catalog resolves display names for alert bodies.
type Catalog interface {
	ProductName(ctx context.Context, productID string) (string, error)
}

// EmailNotifier turns alerts into emails for admins and the supplier.
type EmailNotifier struct {
	mailer   Mailer
	catalog  Catalog
	admins   []string
	supplier string
	logger   *slog.Logger
}

// NewEmailNotifier constructs the notifier. catalog may be nil.
func NewEmailNotifier(mailer Mailer, catalog Catalog, admins []string, supplier string, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	cleaned := make([]string, 0, len(admins))
	for _, addr := range admins {
		if addr = strings.TrimSpace(addr); addr != "" {
			cleaned = append(cleaned, addr)
		}
	}
	return &EmailNotifier{
		mailer:   mailer,
		catalog:  catalog,
		admins:   cleaned,
		supplier: strings.TrimSpace(supplier),
		logger:   logger,
	}
}

// NotifyAdmins implements alerts.Notifier.
func (n *EmailNotifier) NotifyAdmins(ctx context.Context, alert alerts.Alert) error {
	if len(n.admins) == 0 {
		return ErrNoRecipients
	}
	return n.send(ctx, n.admins, alert, "")
}

// NotifySupplier implements alerts.Notifier.
func (n *EmailNotifier) NotifySupplier(ctx context.Context, alert alerts.Alert) error {
	if n.supplier == "" {
		return ErrNoRecipients
	}
	return n.send(ctx, []string{n.supplier}, alert, "Please confirm replenishment availability.\n")
}

func (n *EmailNotifier) send(ctx context.Context, to []string, alert alerts.Alert, footer string) error {
	name := alert.ProductID
	if n.catalog != nil {
		if resolved, err := n.catalog.ProductName(ctx, alert.ProductID); err == nil && resolved != "" {
			name = resolved
		}
	}
	msg := Message{
		To:      to,
		Subject: subjectFor(alert, name),
		Body:    bodyFor(alert, name) + footer,
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send %s alert %s: %w", alert.Status, alert.ID, err)
	}
	n.logger.Info("alert notification sent",
		slog.String("alert_id", alert.ID),
		slog.String("product_id", alert.ProductID),
		slog.Int("recipients", len(to)),
	)
	return nil
}

func subjectFor(alert alerts.Alert, name string) string {
	switch alert.Status {
	case alerts.LevelOutOfStock:
		return fmt.Sprintf("[Inventory] %s is out of stock", name)
	default:
		return fmt.Sprintf("[Inventory] %s is running low", name)
	}
}

func bodyFor(alert alerts.Alert, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s (%s)\n", name, alert.ProductID)
	fmt.Fprintf(&b, "Level: %s\n", alert.Status)
	fmt.Fprintf(&b, "Current stock: %d\n", alert.CurrentStock)
	fmt.Fprintf(&b, "Threshold: %d\n", alert.Threshold)
	fmt.Fprintf(&b, "Raised at: %s\n", alert.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	return b.String()
}

func buildFromAddress(from, name string) string {
	if strings.TrimSpace(name) == "" {
		return from
	}
	return (&mail.Address{Name: mime.QEncoding.Encode("UTF-8", name), Address: from}).String()
}

func buildMessage(from string, msg Message) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(msg.Body)
	return buf.Bytes()
}

// LogMailer writes messages to the logger instead of sending them. It is
// used when SMTP is not configured.
type LogMailer struct {
	Logger *slog.Logger
}

// Send implements Mailer.
func (m LogMailer) Send(_ context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mail suppressed",
		slog.String("to", strings.Join(msg.To, ",")),
		slog.String("subject", msg.Subject),
	)
	return nil
}
