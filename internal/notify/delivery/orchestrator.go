// Package delivery turns a template, a recipient set and a variable context
// into tracked, credit-accounted deliveries.
package delivery

import (
	"context"
	"fmt"
	"time"

	apperrors "course-notify/internal/common/errors"
	"course-notify/internal/common/ids"
	"course-notify/internal/common/logger"
	"course-notify/internal/common/metrics"
	"course-notify/internal/common/observability"
	"course-notify/internal/models"
	"course-notify/internal/notify/template"
	"course-notify/internal/notify/transport"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const unitsPerMessage = 1

type Orchestrator struct {
	deps     Deps
	opts     Options
	metered  map[models.Channel]bool
	resolver *template.Resolver
	logger   logger.Logger
	obs      *observability.Observability
	now      func() time.Time
}

func New(deps Deps, opts Options, resolver *template.Resolver, log logger.Logger, obs *observability.Observability) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.DefaultRegion == "" {
		opts.DefaultRegion = "US"
	}
	if resolver == nil {
		resolver = template.NewResolver(template.DefaultAliases())
	}

	metered := make(map[models.Channel]bool, len(opts.MeteredChannels))
	for _, ch := range opts.MeteredChannels {
		metered[ch] = true
	}

	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		metered:  metered,
		resolver: resolver,
		logger:   logger.ForComponent(log, "delivery"),
		obs:      obs,
		now:      time.Now,
	}
}

// send is the prepared, whole-send state shared by every recipient.
type send struct {
	tmpl      *models.Template
	transport transport.Transport
	vars      template.VariableContext
	accountID string
}

// prepare fails the whole send before any debit when the template or the
// channel's transport is unusable.
func (o *Orchestrator) prepare(ctx context.Context, templateID string, vars template.VariableContext, accountID string) (*send, error) {
	tmpl, err := o.deps.Templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !tmpl.Active {
		return nil, apperrors.NewTemplateInactiveError(templateID)
	}

	tr, err := o.deps.Transports.For(tmpl.Channel)
	if err != nil {
		return nil, apperrors.NewValidationFailedError(err.Error())
	}

	return &send{tmpl: tmpl, transport: tr, vars: vars, accountID: accountID}, nil
}

// SendOne delivers templateID to one recipient. The error is reserved for
// whole-send configuration failures; recipient outcomes are in the Result.
func (o *Orchestrator) SendOne(ctx context.Context, templateID, recipientID string, vars template.VariableContext, accountID string) (*Result, error) {
	s, err := o.prepare(ctx, templateID, vars, accountID)
	if err != nil {
		return nil, err
	}
	res := o.deliver(ctx, s, recipientID)
	return &res, nil
}

func (o *Orchestrator) deliver(ctx context.Context, s *send, recipientID string) Result {
	start := o.now()
	channel := s.tmpl.Channel

	ctx, span := o.obs.StartSpan(ctx, "delivery.send",
		attribute.String("template.id", s.tmpl.ID),
		attribute.String("recipient.id", recipientID),
		attribute.String("channel", string(channel)),
	)
	defer span.End()

	res := o.deliverSteps(ctx, s, recipientID)

	span.SetAttributes(attribute.String("delivery.status", string(res.Status)))
	if !res.Sent() {
		span.SetStatus(codes.Error, res.Error)
	}
	metrics.Deliveries.WithLabelValues(string(channel), string(res.Status)).Inc()
	metrics.DeliveryDuration.WithLabelValues(string(channel)).Observe(o.now().Sub(start).Seconds())
	o.obs.RecordDelivery(ctx, string(channel), string(res.Status))
	return res
}

func (o *Orchestrator) deliverSteps(ctx context.Context, s *send, recipientID string) Result {
	channel := s.tmpl.Channel
	log := o.logger.WithFields(map[string]interface{}{
		"templateId":  s.tmpl.ID,
		"recipientId": recipientID,
		"channel":     string(channel),
	})

	recipient, err := o.deps.Recipients.Get(ctx, recipientID)
	if err != nil {
		log.Warn("recipient lookup failed", map[string]interface{}{"error": err})
		return failure(recipientID, StatusFailed, err)
	}

	to, err := o.address(recipient, channel)
	if err != nil {
		log.Info("recipient unreachable", map[string]interface{}{"error": err})
		return failure(recipientID, StatusUnreachable, err)
	}

	res := Result{RecipientID: recipientID}

	var debit *models.LedgerTransaction
	if o.metered[channel] && s.accountID != "" {
		debit, err = o.deps.Ledger.Debit(ctx, s.accountID, unitsPerMessage,
			fmt.Sprintf("%s %s to %s", channel, s.tmpl.ID, recipientID))
		if err != nil {
			if apperrors.CodeOf(err) == apperrors.ErrCodeInsufficientBalance {
				log.Info("credit exhausted", map[string]interface{}{"accountId": s.accountID})
				return failure(recipientID, StatusCreditExhausted, apperrors.NewCreditExhaustedError(s.accountID, err))
			}
			log.Error("debit failed", map[string]interface{}{"accountId": s.accountID, "error": err})
			return failure(recipientID, StatusFailed, err)
		}
		res.DebitTransactionID = debit.ID

		// From here on the send-or-refund sequence must finish even if the
		// caller goes away.
		ctx = context.WithoutCancel(ctx)
	}

	vars := mergeRecipient(s.vars, recipient)
	entry := &models.DeliveryLog{
		ID:           ids.New(ids.Delivery),
		TemplateID:   s.tmpl.ID,
		RecipientID:  recipientID,
		Channel:      channel,
		Status:       models.DeliveryPending,
		ToAddress:    to,
		ResolvedBody: o.resolver.Resolve(s.tmpl.Body, vars),
		CreatedAt:    o.now().UTC(),
	}
	if channel == models.ChannelEmail {
		entry.ResolvedSubject = o.resolver.Resolve(s.tmpl.Subject, vars)
	}
	if debit != nil {
		entry.DebitTransactionID = debit.ID
	}

	if err := o.deps.Logs.Create(ctx, entry); err != nil {
		log.Error("could not record pending delivery", map[string]interface{}{"error": err})
		res.Status = StatusFailed
		res.ErrorCode = apperrors.CodeOf(err)
		res.Error = err.Error()
		o.compensate(ctx, s, debit, &res, log, "delivery log unavailable")
		return res
	}
	res.DeliveryID = entry.ID

	sendCtx, cancel := context.WithTimeout(ctx, o.opts.SendTimeout)
	sent, sendErr := s.transport.Send(sendCtx, transport.Message{
		To:      to,
		Subject: entry.ResolvedSubject,
		Body:    entry.ResolvedBody,
	})
	cancel()

	completedAt := o.now().UTC()
	entry.CompletedAt = &completedAt

	if sendErr != nil {
		transportErr := apperrors.NewTransportFailureError(string(channel), sendErr)
		entry.Status = models.DeliveryFailed
		entry.Error = transportErr.Error()

		if err := o.deps.Logs.MarkFailed(ctx, entry.ID, entry.Error, completedAt); err != nil {
			log.Error("could not mark delivery failed", map[string]interface{}{"deliveryId": entry.ID, "error": err})
		}

		res.Status = StatusFailed
		res.ErrorCode = transportErr.Code
		res.Error = transportErr.Error()
		o.compensate(ctx, s, debit, &res, log, "transport failure")
		log.Warn("delivery failed", map[string]interface{}{"deliveryId": entry.ID, "provider": s.transport.Name(), "error": sendErr})
		o.audit(ctx, *entry)
		return res
	}

	entry.Status = models.DeliverySent
	entry.ExternalReference = sent.ProviderReference
	res.Status = StatusSent
	res.ProviderReference = sent.ProviderReference

	if err := o.deps.Logs.MarkSent(ctx, entry.ID, sent.ProviderReference, completedAt); err != nil {
		log.Error("could not mark delivery sent", map[string]interface{}{"deliveryId": entry.ID, "error": err})
	}
	if debit != nil {
		if err := o.deps.Ledger.LinkDelivery(ctx, debit.ID, entry.ID); err != nil {
			log.Warn("could not link debit to delivery", map[string]interface{}{"transactionId": debit.ID, "deliveryId": entry.ID, "error": err})
		}
	}

	log.Info("delivery sent", map[string]interface{}{
		"deliveryId":        entry.ID,
		"provider":          sent.Provider,
		"providerReference": sent.ProviderReference,
	})
	o.audit(ctx, *entry)
	return res
}

// compensate refunds debit, if any. A refund that cannot be written leaves
// the account short and is raised as an alert for manual reconciliation.
func (o *Orchestrator) compensate(ctx context.Context, s *send, debit *models.LedgerTransaction, res *Result, log logger.Logger, reason string) {
	if debit == nil {
		return
	}

	refund, err := o.deps.Ledger.Refund(ctx, s.accountID, debit.ID, reason)
	if err != nil {
		metrics.LedgerInconsistencies.Inc()
		log.Error("refund failed, ledger needs reconciliation", map[string]interface{}{
			"alert":                    "ledger_inconsistency",
			"accountId":                s.accountID,
			"originatingTransactionId": debit.ID,
			"error":                    err,
		})
		return
	}
	res.RefundTransactionID = refund.ID
}

func (o *Orchestrator) audit(ctx context.Context, entry models.DeliveryLog) {
	if o.deps.Auditor != nil {
		o.deps.Auditor.Record(ctx, entry)
	}
}

func (o *Orchestrator) address(r *models.Recipient, channel models.Channel) (string, error) {
	raw := r.Address(channel)
	var (
		to  string
		err error
	)
	switch channel {
	case models.ChannelEmail:
		to, err = transport.NormalizeEmail(raw)
	case models.ChannelSMS:
		to, err = transport.NormalizePhone(raw, o.opts.DefaultRegion)
	default:
		err = fmt.Errorf("unsupported channel %q", channel)
	}
	if err != nil {
		return "", apperrors.NewRecipientUnreachableError(r.ID, string(channel), err.Error())
	}
	return to, nil
}

// mergeRecipient copies vars and exposes the recipient as the "recipient"
// section, and as "student" when the caller supplied none.
func mergeRecipient(vars template.VariableContext, r *models.Recipient) template.VariableContext {
	merged := vars.Clone()
	section := func() map[string]interface{} {
		return map[string]interface{}{
			"id":        r.ID,
			"firstName": r.FirstName,
			"lastName":  r.LastName,
			"fullName":  fullName(r.FirstName, r.LastName),
			"email":     r.Email,
			"phone":     r.Phone,
		}
	}
	merged["recipient"] = section()
	if merged.Section("student") == nil {
		merged["student"] = section()
	}
	return merged
}

func fullName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
