package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/agreement-validation/internal/application/port"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/pkg/utils"
)

// Notifier implements port.EscalationNotifier with Lark interactive cards
type Notifier struct {
	sender        messageSender
	receiveIDType string
	receiveID     string
	dashboardURL  string
	logger        *zap.Logger
}

// NewNotifier creates a notifier that messages the configured CFO receiver
func NewNotifier(cfg Config, logger *zap.Logger) *Notifier {
	return newNotifier(NewMessenger(NewSDKClient(cfg, logger), logger), cfg, logger)
}

func newNotifier(sender messageSender, cfg Config, logger *zap.Logger) *Notifier {
	idType := cfg.ReceiveIDType
	if idType == "" {
		idType = "open_id"
	}
	return &Notifier{
		sender:        sender,
		receiveIDType: idType,
		receiveID:     cfg.ReceiveID,
		dashboardURL:  strings.TrimRight(cfg.DashboardURL, "/"),
		logger:        logger,
	}
}

// NotifyEscalation sends the CFO a card describing a submission over the daily limit
func (n *Notifier) NotifyEscalation(ctx context.Context, sub *entity.Submission, message string) error {
	fields := []string{
		fmt.Sprintf("**Vendor:** %s", sub.Vendor),
		fmt.Sprintf("**Agreement:** %s", sub.AgreementID),
		fmt.Sprintf("**Category:** %s", sub.Category),
		fmt.Sprintf("**Invoice:** %s (%s)", orDash(sub.InvoiceNumber), orDash(sub.InvoiceDate.String())),
		fmt.Sprintf("**Grand total:** %s", utils.FormatCurrency(sub.GrandTotal)),
	}
	if message != "" {
		fields = append(fields, "", message)
	}

	card := newCard("CFO approval required", "orange", strings.Join(fields, "\n"))
	if n.dashboardURL != "" {
		card.addButton("Review submission", fmt.Sprintf("%s/cfo?submission=%s", n.dashboardURL, sub.ID))
	}

	if err := n.sendCard(ctx, card); err != nil {
		return fmt.Errorf("failed to notify escalation of %s: %w", sub.ID, err)
	}
	n.logger.Info("Escalation sent to CFO", zap.String("submission_id", sub.ID))
	return nil
}

// NotifyDecision tells the receiver how an escalated submission was decided
func (n *Notifier) NotifyDecision(ctx context.Context, sub *entity.Submission) error {
	verb := "approved"
	if sub.Status == entity.SubmissionStatusRejected {
		verb = "rejected"
	}

	text := fmt.Sprintf("Submission %s from %s (%s) was %s by %s.",
		sub.ID, sub.Vendor, utils.FormatCurrency(sub.GrandTotal), verb, orDash(sub.ReviewedBy))
	if sub.ReviewNote != "" {
		text += " Note: " + sub.ReviewNote
	}

	content, err := textContent(text)
	if err != nil {
		return err
	}
	if _, err := n.sender.Send(ctx, n.receiveIDType, n.receiveID, "text", content); err != nil {
		return fmt.Errorf("failed to notify decision of %s: %w", sub.ID, err)
	}
	return nil
}

func (n *Notifier) sendCard(ctx context.Context, c *card) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal card content: %w", err)
	}
	_, err = n.sender.Send(ctx, n.receiveIDType, n.receiveID, "interactive", string(data))
	return err
}

// card is the subset of the Lark message card schema used here
type card struct {
	Config   map[string]bool          `json:"config"`
	Header   cardHeader               `json:"header"`
	Elements []map[string]interface{} `json:"elements"`
}

type cardHeader struct {
	Title    cardText `json:"title"`
	Template string   `json:"template"`
}

type cardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

func newCard(title, color, markdown string) *card {
	return &card{
		Config: map[string]bool{"wide_screen_mode": true},
		Header: cardHeader{
			Title:    cardText{Tag: "plain_text", Content: title},
			Template: color,
		},
		Elements: []map[string]interface{}{
			{"tag": "div", "text": cardText{Tag: "lark_md", Content: markdown}},
		},
	}
}

func (c *card) addButton(label, url string) {
	c.Elements = append(c.Elements, map[string]interface{}{
		"tag": "action",
		"actions": []map[string]interface{}{{
			"tag":  "button",
			"text": cardText{Tag: "plain_text", Content: label},
			"type": "primary",
			"url":  url,
		}},
	})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// NoopNotifier logs escalations when Lark is not configured
type NoopNotifier struct {
	logger *zap.Logger
}

// NewNoopNotifier creates a notifier that only logs
func NewNoopNotifier(logger *zap.Logger) *NoopNotifier {
	return &NoopNotifier{logger: logger}
}

// NotifyEscalation logs the escalation
func (n *NoopNotifier) NotifyEscalation(ctx context.Context, sub *entity.Submission, message string) error {
	n.logger.Info("Lark disabled, escalation not sent",
		zap.String("submission_id", sub.ID),
		zap.String("message", message))
	return nil
}

// NotifyDecision logs the decision
func (n *NoopNotifier) NotifyDecision(ctx context.Context, sub *entity.Submission) error {
	n.logger.Info("Lark disabled, decision not sent",
		zap.String("submission_id", sub.ID),
		zap.String("status", string(sub.Status)))
	return nil
}

// Verify interface compliance
var (
	_ port.EscalationNotifier = (*Notifier)(nil)
	_ port.EscalationNotifier = (*NoopNotifier)(nil)
)
