package visit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carepath/portal/internal/domain/profile"
	"github.com/carepath/portal/internal/platform/apperr"
	"github.com/carepath/portal/internal/platform/blobstore"
	"github.com/carepath/portal/internal/platform/telemetry"
)

// ProfileStore is the part of the profile service the flow depends on.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)
	UpdatePharmacy(ctx context.Context, userID uuid.UUID, pharmacy string) (*profile.Profile, error)
}

// ReceiptSender delivers the visit summary email.
type ReceiptSender interface {
	SendVisitReceipt(ctx context.Context, email string, data map[string]string) error
}

// FinalizeObserver counts finalize outcomes.
type FinalizeObserver interface {
	ObserveFinalize(outcome string)
}

type EngineConfig struct {
	TreatmentDelay time.Duration
	// Timeout bounds each archive and ledger call.
	Timeout time.Duration
}

// Warning is a non-blocking problem reported with a successful finalize.
type Warning struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

type FinalizeResult struct {
	Record      *Record   `json:"record"`
	Archived    bool      `json:"archived"`
	Emailed     bool      `json:"emailed"`
	PCPNotified bool      `json:"pcp_notified"`
	Warnings    []Warning `json:"warnings,omitempty"`
	NextView    Stage     `json:"next_view"`
}

// Engine drives the STD exposure flow for every user. Sessions live in the
// SessionStore; nothing reaches the ledger, the archive or the dispatcher
// before Finalize.
type Engine struct {
	profiles ProfileStore
	ledger   Ledger
	archive  blobstore.BlobStore
	sender   ReceiptSender
	sessions SessionStore
	observer FinalizeObserver
	cfg      EngineConfig
	logger   zerolog.Logger

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	finalizing map[uuid.UUID]bool
}

func NewEngine(profiles ProfileStore, ledger Ledger, archive blobstore.BlobStore, sender ReceiptSender,
	sessions SessionStore, observer FinalizeObserver, cfg EngineConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		profiles:   profiles,
		ledger:     ledger,
		archive:    archive,
		sender:     sender,
		sessions:   sessions,
		observer:   observer,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		wait:       sleep,
		finalizing: make(map[uuid.UUID]bool),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Engine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.Timeout)
}

func (e *Engine) observe(outcome string) {
	if e.observer != nil {
		e.observer.ObserveFinalize(outcome)
	}
}

func (e *Engine) update(op string, userID uuid.UUID, fn func(Session) (Session, error)) (Session, error) {
	s, err := e.sessions.Update(userID, fn)
	if errors.Is(err, ErrNoSession) {
		return s, apperr.NotFound(op, "no visit in progress")
	}
	if err != nil {
		return s, err
	}
	e.logger.Debug().Str("user_id", userID.String()).Str("visit_id", s.ID.String()).
		Str("stage", string(s.Stage)).Msg("visit stage")
	return s, nil
}

// Start begins a new visit at EXPOSURE, replacing any visit in progress. The
// allergy flag is read from the profile once, here.
func (e *Engine) Start(ctx context.Context, userID uuid.UUID) (Session, error) {
	p, err := e.profiles.GetProfile(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	s := NewSession(userID, HasDoxycyclineAllergy(p.Allergies), e.now())
	e.sessions.Put(s)
	e.logger.Debug().Str("user_id", userID.String()).Str("visit_id", s.ID.String()).Msg("visit started")
	return s, nil
}

func (e *Engine) Current(userID uuid.UUID) (Session, error) {
	s, ok := e.sessions.Get(userID)
	if !ok {
		return Session{}, apperr.NotFound("visit.session", "no visit in progress")
	}
	return s, nil
}

func (e *Engine) SelectExposure(userID uuid.UUID, exposureType string) (Session, error) {
	return e.update("visit.exposure", userID, func(s Session) (Session, error) {
		return s.SelectExposure(exposureType)
	})
}

func (e *Engine) AcknowledgePartner(userID uuid.UUID) (Session, error) {
	return e.update("visit.partner", userID, Session.AcknowledgePartner)
}

// ConfirmSymptoms records the answer, holds the session at
// TREATMENT_LOADING for the configured delay and then moves it to PHARMACY.
// If ctx ends during the delay the session goes back to SYMPTOMS and an
// Unavailable error wrapping the ctx cause is returned.
func (e *Engine) ConfirmSymptoms(ctx context.Context, userID uuid.UUID, hasSymptoms bool) (Session, error) {
	loading, err := e.update("visit.symptoms", userID, func(s Session) (Session, error) {
		return s.ConfirmSymptoms(hasSymptoms)
	})
	if err != nil {
		return loading, err
	}

	if err := e.wait(ctx, e.cfg.TreatmentDelay); err != nil {
		s, _ := e.update("visit.symptoms", userID, func(s Session) (Session, error) {
			if s.ID != loading.ID {
				return s, errSessionReplaced
			}
			return s.CancelTreatment(), nil
		})
		return s, apperr.Unavailable("visit.symptoms",
			"treatment preparation interrupted, visit returned to SYMPTOMS", err)
	}

	return e.update("visit.treatment", userID, func(s Session) (Session, error) {
		if s.ID != loading.ID {
			return s, errSessionReplaced
		}
		return s.TreatmentReady()
	})
}

var errSessionReplaced = apperr.Validation("visit.session", "a new visit was started")

// ConfirmPharmacy sets the destination pharmacy. An empty address confirms
// the pharmacy on file. A different address is written to the profile first.
func (e *Engine) ConfirmPharmacy(ctx context.Context, userID uuid.UUID, address string) (Session, error) {
	cur, err := e.Current(userID)
	if err != nil {
		return cur, err
	}
	if cur.Stage != StagePharmacy {
		_, err := cur.ConfirmPharmacy(address)
		return cur, err
	}

	p, err := e.profiles.GetProfile(ctx, userID)
	if err != nil {
		return cur, err
	}
	if address == "" {
		address = p.Pharmacy
	}
	next, err := cur.ConfirmPharmacy(address)
	if err != nil {
		return cur, err
	}
	if next.PharmacyAddress != p.Pharmacy {
		if _, err := e.profiles.UpdatePharmacy(ctx, userID, next.PharmacyAddress); err != nil {
			return cur, err
		}
	}

	return e.update("visit.pharmacy", userID, func(s Session) (Session, error) {
		if s.ID != cur.ID {
			return s, errSessionReplaced
		}
		return s.ConfirmPharmacy(next.PharmacyAddress)
	})
}

func (e *Engine) SetDelivery(userID uuid.UUID, opts DeliveryOptions) (Session, error) {
	return e.update("visit.delivery", userID, func(s Session) (Session, error) {
		return s.SetDelivery(opts)
	})
}

func (e *Engine) Back(userID uuid.UUID) (Session, error) {
	return e.update("visit.back", userID, Session.Back)
}

// Summary builds the visit summary from the session and a fresh profile
// read.
func (e *Engine) Summary(ctx context.Context, userID uuid.UUID) (*Summary, Session, error) {
	s, err := e.Current(userID)
	if err != nil {
		return nil, s, err
	}
	if s.Stage != StageSummary {
		return nil, s, apperr.Validation("visit.summary", "not allowed at stage %s (expected %s)", s.Stage, StageSummary)
	}
	p, err := e.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, s, err
	}
	sum, err := BuildSummary(s, patientOf(p), e.now())
	return sum, s, err
}

func (e *Engine) SummaryPDF(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	sum, _, err := e.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}
	return RenderPDF(sum, e.now())
}

func patientOf(p *profile.Profile) Patient {
	return Patient{FirstName: p.FirstName, LastName: p.LastName, DOB: p.DOB, Email: p.Email}
}

func (e *Engine) claim(userID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalizing[userID] {
		return false
	}
	e.finalizing[userID] = true
	return true
}

func (e *Engine) release(userID uuid.UUID) {
	e.mu.Lock()
	delete(e.finalizing, userID)
	e.mu.Unlock()
}

// Finalize commits the visit according to its delivery options. The archive
// path runs first: on failure nothing is sent and the session is kept for a
// retry. An email failure after a successful archive is reported as a
// warning; with archiving off it fails the call and keeps the session.
func (e *Engine) Finalize(ctx context.Context, userID uuid.UUID) (*FinalizeResult, error) {
	if !e.claim(userID) {
		return nil, apperr.Validation("visit.finalize", "finalize already in progress")
	}
	defer e.release(userID)

	sum, s, err := e.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec := NewRecord(s, sum)
	res := &FinalizeResult{Record: rec, NextView: StageHistory}
	log := e.logger.With().Str("user_id", userID.String()).Str("visit_id", s.ID.String()).Logger()

	if s.Delivery.Archive {
		if err := e.archiveRecord(ctx, rec, sum); err != nil {
			e.observe(telemetry.OutcomeArchiveFailed)
			log.Warn().Err(err).Msg("visit archive failed")
			return nil, err
		}
		res.Archived = true
	}

	if s.Delivery.Email {
		if err := e.sendReceipt(ctx, rec, sum); err != nil {
			if !res.Archived {
				e.observe(telemetry.OutcomeEmailFailed)
				log.Warn().Err(err).Msg("visit receipt failed")
				return nil, err
			}
			log.Warn().Err(err).Msg("visit archived but receipt failed")
			res.Warnings = append(res.Warnings, Warning{
				Kind:    apperr.KindDispatch,
				Message: "visit was saved but the summary email could not be sent",
			})
		} else {
			res.Emailed = true
		}
	}

	if s.Delivery.NotifyPCP {
		log.Info().Msg("pcp notification requested; no pcp integration is configured")
	}

	e.sessions.Delete(userID, s.ID)

	outcome := finalizeOutcome(res, s.Delivery)
	e.observe(outcome)
	log.Info().Str("outcome", outcome).Bool("archived", res.Archived).Bool("emailed", res.Emailed).Msg("visit finalized")
	return res, nil
}

func finalizeOutcome(res *FinalizeResult, opts DeliveryOptions) string {
	switch {
	case res.Archived && opts.Email && !res.Emailed:
		return telemetry.OutcomeArchivedEmailFailed
	case res.Archived:
		return telemetry.OutcomeArchived
	case res.Emailed:
		return telemetry.OutcomeEmailed
	}
	return telemetry.OutcomeNoDelivery
}

// archiveRecord uploads the summary PDF and then appends the ledger row
// that points at it.
func (e *Engine) archiveRecord(ctx context.Context, rec *Record, sum *Summary) error {
	doc, err := RenderPDF(sum, e.now())
	if err != nil {
		return apperr.Write("visit.finalize", "render summary document", err)
	}
	key := DocumentKey(rec.UserID, rec.ID)

	pctx, cancel := e.bounded(ctx)
	_, err = e.archive.Put(pctx, key, "application/pdf", doc)
	cancel()
	if err != nil {
		return apperr.Write("visit.finalize", "store summary document", err)
	}
	rec.DocumentKey = key

	lctx, cancel := e.bounded(ctx)
	defer cancel()
	if err := e.ledger.Append(lctx, rec); err != nil {
		rec.DocumentKey = ""
		return apperr.Write("visit.finalize", "append visit record", err)
	}
	return nil
}

func (e *Engine) sendReceipt(ctx context.Context, rec *Record, sum *Summary) error {
	err := e.sender.SendVisitReceipt(ctx, rec.Email, rec.ReceiptData(sum.Text()))
	if err != nil && apperr.KindOf(err) == "" {
		err = apperr.Dispatch("visit.finalize", "send visit receipt", err)
	}
	return err
}

// DocumentKey is the archive key of a visit's summary PDF.
func DocumentKey(userID, visitID uuid.UUID) string {
	return fmt.Sprintf("visits/%s/%s.pdf", userID, visitID)
}

// History lists the user's finalized visits newest first. It does not touch
// the session in progress.
func (e *Engine) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	items, total, err := e.ledger.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Unavailable("visit.history", "list visit records", err)
	}
	return items, total, nil
}
