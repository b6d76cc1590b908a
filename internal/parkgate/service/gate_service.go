package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
)

// MaxCardUIDLen bounds the scanned card token, in characters.
const MaxCardUIDLen = 100

var (
	ErrInvalidReaderID = errors.New("reader_id is required")
	ErrInvalidCardUID  = errors.New("card_uid must be 1-100 characters")
	ErrInvalidAction   = errors.New(`action must be "enter" or "exit"`)
	ErrReaderNotFound  = errors.New("reader not found")

	// ErrTransient wraps store timeouts and conflicts that survived every
	// retry.  The device is expected to retry the scan.
	ErrTransient = errors.New("store temporarily unavailable")
)

// GateConfig is the explicit configuration of the decision engine.
type GateConfig struct {
	RatePerHour     int64
	DirectionPolicy DirectionPolicy

	// StoreTimeout bounds each decision transaction attempt.
	StoreTimeout time.Duration

	// MaxAttempts is how many times a conflicting transaction is run.
	MaxAttempts int

	// Now defaults to time.Now.
	Now func() time.Time
}

// DecisionPublisher receives every committed ledger entry.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, e store.LogEntry) error
}

// DecisionRecorder observes committed decisions, e.g. for metrics.
type DecisionRecorder interface {
	ObserveDecision(e store.LogEntry, elapsed time.Duration)
}

// Decision is what the gate shows the driver.  Owner details are set
// whenever the scan matched a card, granted or not.
type Decision struct {
	Result          store.Result
	Reason          string
	Message         string
	CardMatched     bool
	OwnerName       string
	VehiclePlate    string
	DurationMinutes *int64
	Fee             *int64
}

type GateService struct {
	store     store.GateStore
	cfg       GateConfig
	logger    *zap.Logger
	publisher DecisionPublisher
	recorder  DecisionRecorder
	tracer    trace.Tracer
}

func NewGateService(st store.GateStore, cfg GateConfig, logger *zap.Logger) *GateService {
	if cfg.DirectionPolicy == "" {
		cfg.DirectionPolicy = DirectionFromPayload
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GateService{
		store:  st,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("parkgate/service"),
	}
}

func (s *GateService) WithPublisher(p DecisionPublisher) *GateService {
	s.publisher = p
	return s
}

func (s *GateService) WithRecorder(r DecisionRecorder) *GateService {
	s.recorder = r
	return s
}

type outcome struct {
	entry store.LogEntry
	card  *store.Card
}

// Decide evaluates one scan and appends exactly one ledger entry for it.
// Only input validation and an unknown reader return before writing.
// Surrounding whitespace is stripped from both IDs before lookup, and the
// ledger records the stripped card UID.
func (s *GateService) Decide(ctx context.Context, readerID, cardUID string, action store.Action) (Decision, store.LogEntry, error) {
	readerID = strings.TrimSpace(readerID)
	cardUID = strings.TrimSpace(cardUID)

	if readerID == "" {
		return Decision{}, store.LogEntry{}, ErrInvalidReaderID
	}
	if cardUID == "" || utf8.RuneCountInString(cardUID) > MaxCardUIDLen {
		return Decision{}, store.LogEntry{}, ErrInvalidCardUID
	}
	if !action.Valid() {
		return Decision{}, store.LogEntry{}, ErrInvalidAction
	}

	ctx, span := s.tracer.Start(ctx, "GateService.Decide", trace.WithAttributes(
		attribute.String("parkgate.reader_id", readerID),
		attribute.String("parkgate.action", string(action)),
	))
	defer span.End()

	start := time.Now()

	var (
		out outcome
		err error
	)
	for attempt := 1; ; attempt++ {
		out, err = s.attempt(ctx, readerID, cardUID, action)
		if err == nil || !errors.Is(err, store.ErrConflict) || attempt >= s.cfg.MaxAttempts {
			break
		}
		s.logger.Warn("decision transaction conflict, retrying",
			zap.String("reader_id", readerID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		switch {
		case errors.Is(err, ErrReaderNotFound):
			return Decision{}, store.LogEntry{}, err
		case errors.Is(err, store.ErrConflict), errors.Is(err, context.DeadlineExceeded):
			return Decision{}, store.LogEntry{}, fmt.Errorf("%w: %w", ErrTransient, err)
		default:
			return Decision{}, store.LogEntry{}, fmt.Errorf("decide: %w", err)
		}
	}

	entry := out.entry
	span.SetAttributes(
		attribute.String("parkgate.result", string(entry.Result)),
		attribute.Int64("parkgate.log_id", entry.ID),
	)

	s.logger.Info("gate decision",
		zap.Int64("log_id", entry.ID),
		zap.String("reader_id", entry.ReaderID),
		zap.String("action", string(entry.Action)),
		zap.String("result", string(entry.Result)),
		zap.String("reason", deref(entry.Reason)),
	)

	if s.recorder != nil {
		s.recorder.ObserveDecision(entry, time.Since(start))
	}
	if s.publisher != nil {
		if err := s.publisher.PublishDecision(ctx, entry); err != nil {
			s.logger.Warn("publish decision failed", zap.Int64("log_id", entry.ID), zap.Error(err))
		}
	}

	return buildDecision(entry, out.card), entry, nil
}

// attempt runs one decision transaction.  The reads, the optional expiry
// write and the ledger append commit together.
func (s *GateService) attempt(ctx context.Context, readerID, cardUID string, claimed store.Action) (outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	var out outcome
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.DecisionTx) error {
		out = outcome{}
		now := s.cfg.Now().UTC()

		reader, err := tx.ReaderByID(ctx, readerID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrReaderNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup reader: %w", err)
		}

		action, mismatch := s.cfg.DirectionPolicy.resolveAction(reader, claimed)
		entry := store.LogEntry{
			CardUID:   cardUID,
			ReaderID:  reader.ID,
			Action:    action,
			DecidedAt: now,
		}

		card, err := tx.CardByUID(ctx, cardUID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			deny(&entry, ReasonNotFound)
		case err != nil:
			return fmt.Errorf("lookup card: %w", err)
		default:
			out.card = &card
			entry.CardID = &card.ID
			if err := s.evaluateCard(ctx, tx, card, mismatch, &entry); err != nil {
				return err
			}
		}

		if err := tx.Append(ctx, &entry); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		out.entry = entry
		return nil
	})
	return out, err
}

func (s *GateService) evaluateCard(ctx context.Context, tx store.DecisionTx, card store.Card, mismatch bool, entry *store.LogEntry) error {
	if mismatch {
		deny(entry, ReasonDirectionMismatch)
		return nil
	}

	if reason, denied := denialReason(card, entry.DecidedAt); denied {
		if reason == ReasonExpired && card.Status != store.CardExpired {
			if err := tx.MarkExpired(ctx, card.ID, entry.DecidedAt); err != nil {
				return fmt.Errorf("mark card expired: %w", err)
			}
		}
		deny(entry, reason)
		return nil
	}

	entry.Result = store.ResultGranted
	if entry.Action != store.ActionExit {
		return nil
	}

	open, ok, err := tx.OpenEntry(ctx, card.ID)
	if err != nil {
		return fmt.Errorf("lookup open session: %w", err)
	}
	if !ok {
		// No session on record: the gate still opens, nothing is billed.
		return nil
	}
	minutes, fee := sessionCharge(open.DecidedAt, entry.DecidedAt, s.cfg.RatePerHour)
	entry.DurationMinutes = &minutes
	entry.Fee = &fee
	return nil
}

func deny(e *store.LogEntry, reason string) {
	e.Result = store.ResultDenied
	e.Reason = &reason
}

func buildDecision(e store.LogEntry, card *store.Card) Decision {
	d := Decision{
		Result:          e.Result,
		Reason:          deref(e.Reason),
		DurationMinutes: e.DurationMinutes,
		Fee:             e.Fee,
	}
	if card != nil {
		d.CardMatched = true
		d.OwnerName = card.OwnerName
		d.VehiclePlate = card.VehiclePlate
	}

	switch {
	case e.Result == store.ResultDenied && d.Reason == ReasonNotFound:
		d.Message = "Card not found in system"
	case e.Result == store.ResultDenied:
		d.Message = "Access denied: " + d.Reason
	case e.Action == store.ActionEnter:
		d.Message = strings.TrimSpace("Entry granted. Welcome " + d.OwnerName)
	case e.Fee != nil:
		d.Message = fmt.Sprintf("Exit granted. Parked %d min, fee due %d", *e.DurationMinutes, *e.Fee)
	default:
		d.Message = strings.TrimSpace("Exit granted. Goodbye " + d.OwnerName)
	}
	return d
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
