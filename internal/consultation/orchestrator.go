package consultation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain"
	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
	"github.com/satriahrh/konsulta/internal/ai"
	"github.com/satriahrh/konsulta/internal/billing"
	"github.com/satriahrh/konsulta/internal/recording"
)

const defaultRequestTimeout = 60 * time.Second

// Dependencies are the collaborators of an orchestrator. Repository, Artifacts
// and Clock are optional.
type Dependencies struct {
	Device         repositories.CaptureDevice
	Transcription  *ai.TranscriptionClient
	Suggestions    *ai.SuggestionClient
	Billing        repositories.BillingGateway
	Tokens         repositories.TokenSource
	Repository     repositories.ConsultationRepository
	Artifacts      repositories.ArtifactStore
	Clock          clock.Clock
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Orchestrator sequences recording, transcription, suggestions and billing
// for a single consultation. At most one network call is in flight at a time,
// and results that arrive after the flow moved on or after teardown are dropped.
type Orchestrator struct {
	info       Info
	deps       Dependencies
	recorder   *recording.Controller
	calculator *billing.Calculator
	events     chan Event
	done       chan struct{}
	clock      clock.Clock
	createdAt  time.Time
	logger     *zap.Logger

	mu          sync.Mutex
	state       State
	transcript  *entities.Transcript
	suggestions *entities.SuggestionSet
	audio       *entities.AudioBlob
	notices     []Notice
	lastError   string
	recordID    string
	mounted     bool
	touchedAt   time.Time
	generation  uint64
	inFlight    bool
	submitting  bool
	pending     sync.WaitGroup
}

// New creates an orchestrator in StateAwaitingStart
func New(info Info, deps Dependencies) (*Orchestrator, error) {
	if info.ID == "" {
		info.ID = uuid.New().String()
	}
	record := entities.Consultation{
		AppointmentID: info.AppointmentID,
		PatientID:     info.PatientID,
		Mode:          info.Mode,
		Bill:          entities.ConsultationBill{BaseFee: info.BaseFee},
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consultation: %w", err)
	}
	if deps.Device == nil || deps.Transcription == nil || deps.Suggestions == nil || deps.Billing == nil || deps.Tokens == nil {
		return nil, errors.New("device, transcription, suggestions, billing and tokens are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = defaultRequestTimeout
	}

	calculator, err := billing.NewCalculator(info.BaseFee)
	if err != nil {
		return nil, err
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	o := &Orchestrator{
		info:       info,
		deps:       deps,
		calculator: calculator,
		events:     make(chan Event, eventBufferSize),
		done:       make(chan struct{}),
		clock:      clk,
		createdAt:  clk.Now(),
		logger:     deps.Logger.With(zap.String("consultationID", info.ID)),
		state:      StateAwaitingStart,
		notices:    make([]Notice, 0),
		mounted:    true,
	}
	o.touchedAt = o.createdAt

	o.recorder = recording.NewController(deps.Device, o.logger,
		recording.WithTickHandler(o.handleTick),
		recording.WithClock(clk))

	return o, nil
}

// ID returns the consultation identifier
func (o *Orchestrator) ID() string {
	return o.info.ID
}

// Done is closed when the orchestrator is torn down
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Enter runs the on-entry behaviour. Online consultations start recording
// automatically; an unavailable device is surfaced as a notice and the
// consultation proceeds straight to billing.
func (o *Orchestrator) Enter(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkMounted(); err != nil {
		return err
	}
	if o.state != StateAwaitingStart {
		return fmt.Errorf("%w: consultation already entered", domain.ErrInvalidTransition)
	}

	o.logger.Info("Consultation entered", zap.String("mode", string(o.info.Mode)))
	if o.info.Mode != entities.ConsultationModeOnline {
		return nil
	}

	if err := o.startRecording(ctx); err != nil {
		o.logger.Warn("Automatic recording start failed, continuing without audio", zap.Error(err))
	}
	return nil
}

// StartRecording is the clinician's explicit start action
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkMounted(); err != nil {
		return err
	}
	if o.state == StateRecording {
		return domain.ErrAlreadyRecording
	}
	if o.state != StateAwaitingStart {
		return fmt.Errorf("%w: cannot start recording while %s", domain.ErrInvalidTransition, o.state)
	}
	return o.startRecording(ctx)
}

// startRecording must be called with mu held
func (o *Orchestrator) startRecording(ctx context.Context) error {
	err := o.recorder.Start(ctx)
	if err == nil {
		o.transition(StateRecording)
		return nil
	}

	if errors.Is(err, domain.ErrDeviceUnavailable) {
		o.addNotice(NoticeDeviceUnavailable, "Microphone is unavailable; the consultation can be billed without a recording.")
		if o.info.Mode == entities.ConsultationModeOnline {
			o.fail(err)
		}
	}
	return err
}

// StopRecording finalizes the recording and, when audio was captured, starts
// transcription in the background
func (o *Orchestrator) StopRecording(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkMounted(); err != nil {
		return err
	}
	if o.state != StateRecording {
		return fmt.Errorf("%w: no recording in progress", domain.ErrInvalidTransition)
	}

	blob, err := o.recorder.Stop()
	if err != nil {
		o.addNotice(NoticeRecordingFailed, "The recording could not be saved; the consultation can still be billed.")
		o.fail(err)
		return nil
	}
	if blob == nil {
		o.addNotice(NoticeNoAudio, "No audio was captured.")
		o.transition(StateReadyForBilling)
		return nil
	}

	o.audio = blob
	o.transition(StateTranscribing)
	o.launch(resultTranscription, func(ctx context.Context, token string) stepResult {
		transcript, err := o.deps.Transcription.Submit(ctx, blob, token)
		return stepResult{kind: resultTranscription, transcript: transcript, err: err}
	})
	return nil
}

// SkipToBilling lets the clinician move on without waiting for recording,
// transcription or suggestions. Pending results are discarded on arrival.
func (o *Orchestrator) SkipToBilling() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkMounted(); err != nil {
		return err
	}

	switch o.state {
	case StateReadyForBilling:
		return nil
	case StateRecording:
		o.recorder.Reset()
	case StateAwaitingStart, StateTranscribing, StateSuggestionsPending:
	default:
		return fmt.Errorf("%w: cannot skip to billing while %s", domain.ErrInvalidTransition, o.state)
	}

	o.generation++
	o.transition(StateReadyForBilling)
	return nil
}

// SetBaseFee replaces the base consultation fee
func (o *Orchestrator) SetBaseFee(fee float64) error {
	return o.editBill(func(c *billing.Calculator) error {
		return c.SetBaseFee(fee)
	})
}

// AddLineItem appends an extra fee to the bill
func (o *Orchestrator) AddLineItem(description string, amount float64) error {
	return o.editBill(func(c *billing.Calculator) error {
		return c.AddLineItem(description, amount)
	})
}

// RemoveLineItem removes the extra fee at index; out-of-range indexes are ignored
func (o *Orchestrator) RemoveLineItem(index int) error {
	return o.editBill(func(c *billing.Calculator) error {
		c.RemoveLineItem(index)
		return nil
	})
}

func (o *Orchestrator) editBill(edit func(c *billing.Calculator) error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkMounted(); err != nil {
		return err
	}
	if o.state != StateReadyForBilling {
		return fmt.Errorf("%w: bill can only be edited when ready for billing", domain.ErrInvalidTransition)
	}
	if o.submitting {
		return domain.ErrRequestInFlight
	}
	if err := edit(o.calculator); err != nil {
		return err
	}

	o.touchedAt = o.clock.Now()
	o.emit(EventBillUpdated, o.calculator.Bill())
	return nil
}

// SubmitBill sends the bill to the billing endpoint and blocks until it
// resolves. On success the consultation becomes Complete and can no longer be
// edited; on failure it stays ReadyForBilling and may be resubmitted.
func (o *Orchestrator) SubmitBill(ctx context.Context) (string, error) {
	o.mu.Lock()
	if err := o.checkMounted(); err != nil {
		o.mu.Unlock()
		return "", err
	}
	if o.state != StateReadyForBilling {
		o.mu.Unlock()
		return "", fmt.Errorf("%w: bill can only be submitted when ready for billing", domain.ErrInvalidTransition)
	}
	if o.inFlight {
		o.mu.Unlock()
		return "", domain.ErrRequestInFlight
	}

	bill := o.calculator.Bill()
	submission := repositories.BillingSubmission{
		AppointmentID:   o.info.AppointmentID,
		PatientID:       o.info.PatientID,
		ConsultationFee: bill.BaseFee,
		ExtraFees:       bill.LineItems,
		TotalFee:        bill.Total,
		AISuggestions:   o.suggestions.Clone(),
	}
	if o.transcript != nil {
		text := o.transcript.Text
		submission.Transcript = &text
	}
	o.inFlight = true
	o.submitting = true
	o.mu.Unlock()

	recordID, err := o.submit(ctx, submission)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight = false
	o.submitting = false

	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrBillingSubmissionFailed, err)
		o.logger.Error("Billing submission failed", zap.Error(err))
		if o.mounted {
			o.lastError = err.Error()
			o.addNotice(NoticeBillingFailed, fmt.Sprintf("Billing failed: %v. Your changes are kept; please try again.", err))
		}
		return "", err
	}

	if !o.mounted {
		o.logger.Warn("Billing accepted after teardown, not applying", zap.String("recordID", recordID))
		return recordID, nil
	}

	o.recordID = recordID
	o.lastError = ""
	o.transition(StateBilled)

	record := o.buildRecord(bill, recordID)
	o.inFlight = true
	o.mu.Unlock()
	saveErr := o.persist(ctx, record)
	o.mu.Lock()
	o.inFlight = false

	if saveErr != nil && o.mounted {
		o.addNotice(NoticeRecordNotSaved, "Bill submitted, but the consultation record could not be saved locally.")
	}
	if o.mounted {
		o.transition(StateComplete)
	}

	o.logger.Info("Consultation billed",
		zap.String("recordID", recordID),
		zap.String("total", billing.FormatAmount(bill.Total)))
	return recordID, nil
}

func (o *Orchestrator) submit(ctx context.Context, submission repositories.BillingSubmission) (string, error) {
	token, err := o.deps.Tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("no session token: %w", err)
	}
	recordID, err := o.deps.Billing.SubmitBill(ctx, submission, token)
	if err != nil {
		return "", err
	}
	return recordID, nil
}

// Teardown cancels the duration timer, releases the capture device and
// detaches in-flight requests. It is idempotent.
func (o *Orchestrator) Teardown() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.mounted {
		return
	}
	o.recorder.Reset()
	o.generation++
	o.emit(EventClosed, nil)
	o.mounted = false
	close(o.done)

	o.logger.Info("Consultation torn down", zap.String("state", string(o.state)))
}

// Idle returns the current state and how long ago it last changed
func (o *Orchestrator) Idle() (State, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.clock.Since(o.touchedAt)
}

// Wait blocks until background transcription and suggestion calls finish
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

// Snapshot returns the current view of the consultation
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshot := Snapshot{
		Info:            o.info,
		State:           o.state,
		Recording:       o.recorder.Session(),
		TimerActive:     o.recorder.Ticking(),
		Suggestions:     o.suggestions.Clone(),
		Bill:            o.calculator.Bill(),
		Notices:         append([]Notice(nil), o.notices...),
		LastError:       o.lastError,
		BillingRecordID: o.recordID,
		Closed:          !o.mounted,
	}
	snapshot.Info.BaseFee = snapshot.Bill.BaseFee
	if o.transcript != nil {
		transcript := *o.transcript
		snapshot.Transcript = &transcript
	}
	return snapshot
}

// launch runs one network step in the background. Must be called with mu held.
func (o *Orchestrator) launch(kind resultKind, call func(ctx context.Context, token string) stepResult) {
	generation := o.generation
	o.inFlight = true
	o.pending.Add(1)

	go func() {
		defer o.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), o.deps.RequestTimeout)
		defer cancel()

		var result stepResult
		token, err := o.deps.Tokens.Token(ctx)
		if err != nil {
			result = stepResult{kind: kind, err: fmt.Errorf("no session token: %w", err)}
		} else {
			result = call(ctx, token)
		}
		result.generation = generation
		o.apply(result)
	}()
}

// apply feeds a step result into the state machine
func (o *Orchestrator) apply(result stepResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.inFlight = false

	expected := StateTranscribing
	if result.kind == resultSuggestions {
		expected = StateSuggestionsPending
	}
	if !o.mounted || result.generation != o.generation || o.state != expected {
		o.logger.Info("Discarding stale result",
			zap.String("step", result.kind.String()),
			zap.String("state", string(o.state)),
			zap.Bool("mounted", o.mounted))
		return
	}

	switch result.kind {
	case resultTranscription:
		if result.err != nil {
			o.addNotice(NoticeTranscriptionFailed, fmt.Sprintf("Transcript unavailable: %v", result.err))
			o.fail(result.err)
			return
		}
		o.transcript = result.transcript
		o.transition(StateSuggestionsPending)

		text := result.transcript.Text
		o.launch(resultSuggestions, func(ctx context.Context, token string) stepResult {
			set, err := o.deps.Suggestions.Submit(ctx, text, token)
			return stepResult{kind: resultSuggestions, suggestions: set, err: err}
		})

	case resultSuggestions:
		if result.err != nil {
			o.addNotice(NoticeSuggestionsFailed, "AI suggestions are unavailable for this consultation.")
			o.fail(result.err)
			return
		}
		o.suggestions = result.suggestions
		o.transition(StateReadyForBilling)
	}
}

// fail routes through the error state back to billing. Must be called with mu held.
func (o *Orchestrator) fail(err error) {
	o.lastError = err.Error()
	o.logger.Warn("Consultation step failed, continuing to billing",
		zap.String("state", string(o.state)),
		zap.Error(err))
	o.transition(StateError)
	o.transition(StateReadyForBilling)
}

// transition must be called with mu held
func (o *Orchestrator) transition(next State) {
	if o.state == next {
		return
	}
	previous := o.state
	o.state = next
	o.touchedAt = o.clock.Now()
	o.logger.Debug("State changed",
		zap.String("from", string(previous)),
		zap.String("to", string(next)))
	o.emit(EventStateChanged, map[string]string{"from": string(previous), "error": o.lastErrorFor(next)})
}

func (o *Orchestrator) lastErrorFor(state State) string {
	if state == StateError {
		return o.lastError
	}
	return ""
}

// addNotice must be called with mu held
func (o *Orchestrator) addNotice(kind NoticeKind, message string) {
	notice := Notice{Kind: kind, Message: message, At: o.clock.Now()}
	o.notices = append(o.notices, notice)
	o.emit(EventNotice, notice)
}

// checkMounted must be called with mu held
func (o *Orchestrator) checkMounted() error {
	if !o.mounted {
		return domain.ErrConsultationClosed
	}
	return nil
}

func (o *Orchestrator) handleTick(seconds int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.mounted && o.state == StateRecording {
		o.emit(EventTick, map[string]int{"duration_seconds": seconds})
	}
}
