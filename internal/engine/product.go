package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KlubJagiellonski/pola-facebook/internal/bus"
	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
	"github.com/KlubJagiellonski/pola-facebook/internal/metrics"
)

const (
	checkMark = "✓"
	crossMark = "✗"
)

// Fixed reply texts. The dialogue is Polish-only.
const (
	msgWelcome = "Cześć! Wyślij zdjęcie kodu kreskowego produktu albo wpisz jego kod EAN, " +
		"a sprawdzę udział polskiego kapitału u producenta."
	msgProcessingImage = "Przetwarzam obrazek. "
	msgCodeFound       = "Znaleziono kod: "
	msgCodeReceived    = "Kod produktu otrzymany: "
	msgNotRecognized   = "Nie udało nam się pobrać kodu z obrazka. " +
		"Możesz spróbować wpisać kod ręcznie lub wysłać lepsze zdjęcie."
	msgLookupFailure = "Mamy usterkę i nie możemy w tym momencie uzyskać informacji na temat tego kodu. " +
		"Spróbuj ponownie później. Przepraszamy! "
	msgNeedMoreEvidence = "Nie mamy wystarczających danych o tym produkcie. " +
		"Wyślij zdjęcie kodu kreskowego jeszcze raz albo sprawdź inny produkt."
	msgCancelled = "Anulowano. Wyślij zdjęcie kodu kreskowego albo wpisz kod EAN, aby zacząć od nowa."
	msgHelp      = "Wyślij zdjęcie kodu kreskowego produktu albo wpisz jego kod EAN (13 lub 8 cyfr). " +
		"Napisz ANULUJ, aby przerwać."
	msgInfo = "Pola pomaga odnaleźć polskie wyroby. Zabierając Polę na zakupy, " +
		"odnajdujesz produkty firm z polskim kapitałem."
	msgMethodology = "Ocena producenta uwzględnia: udział polskiego kapitału, miejsce produkcji, " +
		"prowadzenie badań i rozwoju, miejsce rejestracji oraz przynależność do zagranicznego koncernu."
)

// ProductFlow binds the product-lookup business logic to the state machine:
// decode a photographed barcode or accept a typed code, query the report
// service, and render the result.
type ProductFlow struct {
	decoder domain.BarcodeDecoder
	lookup  domain.ProductLookup
	fetcher domain.AttachmentFetcher
	events  *bus.EventBus
	logger  *slog.Logger
}

type ProductFlowConfig struct {
	Decoder domain.BarcodeDecoder
	Lookup  domain.ProductLookup
	Fetcher domain.AttachmentFetcher
	Events  *bus.EventBus
	Logger  *slog.Logger
}

func NewProductFlow(cfg ProductFlowConfig) *ProductFlow {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ProductFlow{
		decoder: cfg.Decoder,
		lookup:  cfg.Lookup,
		fetcher: cfg.Fetcher,
		events:  cfg.Events,
		logger:  cfg.Logger.With("component", "engine.product"),
	}
}

// Register wires the full transition table. Machine.Validate afterwards
// guarantees totality over states × intents.
func (f *ProductFlow) Register(m *Machine) {
	restingStates := []domain.MachineState{
		domain.StateWelcome,
		domain.StateWaitForAction,
		domain.StateReportPromptImage,
		domain.StateAskForChangesOrAction,
	}

	for _, state := range restingStates {
		m.Handle(state, IntentImage, f.onImage)
		m.Handle(state, IntentCode, f.onCode)
		m.Handle(state, IntentCancel, f.onCancel)
		m.Handle(state, IntentHelp, f.onHelp)
		m.Handle(state, IntentInfo, f.onInfo)
		m.Handle(state, IntentMethodology, f.onMethodology)
		m.HandleAny(state, f.onInstructions)
	}

	// Affirmative or submit while a code is already known re-runs the lookup.
	m.Handle(domain.StateReportPromptImage, IntentAffirmative, f.onStoredCode)
	m.Handle(domain.StateReportPromptImage, IntentSubmit, f.onStoredCode)
	m.Handle(domain.StateAskForChangesOrAction, IntentAffirmative, f.onStoredCode)
	m.Handle(domain.StateAskForChangesOrAction, IntentSubmit, f.onStoredCode)
	m.Handle(domain.StateAskForChangesOrAction, IntentNegative, f.onCancel)

	// Transient states: entry actions fire on arrival, fallbacks cover a
	// context that was persisted mid-chain.
	m.OnEnter(domain.StateNotRecognized, f.onNotRecognized)
	m.HandleAny(domain.StateNotRecognized, f.onNotRecognized)
	m.OnEnter(domain.StateDisplayResults, f.onDisplayResults)
	m.HandleAny(domain.StateDisplayResults, f.onDisplayResults)
}

// onImage acknowledges the photo, decodes the barcode from the context's last
// attachment, and on success runs the lookup. Decode failure of any kind
// routes to NOT_RECOGNIZED.
func (f *ProductFlow) onImage(ctx context.Context, t *Turn) (domain.MachineState, error) {
	for _, att := range t.Message.Attachments {
		if att.Type == domain.AttachmentImage {
			t.Context.LastAttachment = &att
			break
		}
	}
	if t.Context.LastAttachment == nil {
		return domain.StateNotRecognized, nil
	}

	t.Reply(msgProcessingImage)

	body, err := f.fetcher.Fetch(ctx, *t.Context.LastAttachment)
	if err != nil {
		f.decodeFailed(t, err)
		return domain.StateNotRecognized, nil
	}
	code, err := f.decoder.Decode(ctx, body)
	body.Close()
	if err != nil {
		f.decodeFailed(t, err)
		return domain.StateNotRecognized, nil
	}

	t.Reply(msgCodeFound + code)
	t.Context.EANCode = code
	return f.queryLookup(ctx, t, code)
}

// onCode accepts a typed EAN code. Multiple codes in one message use the
// first; the extractor works for singular codes only.
func (f *ProductFlow) onCode(ctx context.Context, t *Turn) (domain.MachineState, error) {
	code := t.Classification.Codes[0]
	t.Context.EANCode = code
	t.Reply(msgCodeReceived + code)
	return f.queryLookup(ctx, t, code)
}

// onStoredCode re-runs the lookup with the code already held in the context.
func (f *ProductFlow) onStoredCode(ctx context.Context, t *Turn) (domain.MachineState, error) {
	if t.Context.EANCode == "" {
		return f.onInstructions(ctx, t)
	}
	t.Reply(msgCodeReceived + t.Context.EANCode)
	return f.queryLookup(ctx, t, t.Context.EANCode)
}

// queryLookup fetches the report and routes on its completeness: a result
// with a description is displayable, one without needs more evidence from the
// user. A lookup failure resets the conversation with an apology.
func (f *ProductFlow) queryLookup(ctx context.Context, t *Turn, code string) (domain.MachineState, error) {
	start := time.Now()
	result, err := f.lookup.ByCode(ctx, code)
	metrics.LookupLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		f.logger.Error("product lookup failed", "code", code, "user", t.Context.UserID, "err", err)
		metrics.LookupFailures.Inc()
		if f.events != nil {
			f.events.Emit(bus.Event{
				Type:    bus.EventLookupFailed,
				Source:  "engine.product",
				Payload: map[string]any{"code": code, "user": t.Context.UserID},
			})
		}
		t.Reply(msgLookupFailure)
		return domain.StateWelcome, nil
	}

	t.Context.Result = result
	if result.Description != nil {
		return domain.StateDisplayResults, nil
	}
	// The prompt belongs to the lookup outcome, not to entering the state:
	// a user already waiting in REPORT_PROMPT_IMAGE must hear it again.
	t.Reply(msgNeedMoreEvidence)
	return domain.StateReportPromptImage, nil
}

// onNotRecognized explains the failed decode and offers the standard options.
func (f *ProductFlow) onNotRecognized(ctx context.Context, t *Turn) (domain.MachineState, error) {
	t.Reply(msgNotRecognized,
		domain.QuickReply{Title: "Pomoc", Payload: PayloadHelp},
		domain.QuickReply{Title: "Informacje", Payload: PayloadInfo},
		domain.QuickReply{Title: "Metodyka", Payload: PayloadMethodology},
	)
	return domain.StateWaitForAction, nil
}

// onDisplayResults renders the fixed multi-line report.
func (f *ProductFlow) onDisplayResults(ctx context.Context, t *Turn) (domain.MachineState, error) {
	result := t.Context.Result
	if result == nil {
		f.logger.Error("display requested without a result", "user", t.Context.UserID)
		t.Reply(msgWelcome)
		return domain.StateWelcome, nil
	}
	t.Reply(formatReport(result))
	return domain.StateAskForChangesOrAction, nil
}

// onCancel abandons the current product and restarts the conversation.
func (f *ProductFlow) onCancel(ctx context.Context, t *Turn) (domain.MachineState, error) {
	t.Context.EANCode = ""
	t.Context.Result = nil
	t.Context.LastAttachment = nil
	t.Reply(msgCancelled)
	return domain.StateWelcome, nil
}

func (f *ProductFlow) onHelp(ctx context.Context, t *Turn) (domain.MachineState, error) {
	t.Reply(msgHelp)
	return t.Context.State, nil
}

func (f *ProductFlow) onInfo(ctx context.Context, t *Turn) (domain.MachineState, error) {
	t.Reply(msgInfo)
	return t.Context.State, nil
}

func (f *ProductFlow) onMethodology(ctx context.Context, t *Turn) (domain.MachineState, error) {
	t.Reply(msgMethodology)
	return t.Context.State, nil
}

// onInstructions is the fallback for unclassified input: repeat what the bot
// can do and stay put.
func (f *ProductFlow) onInstructions(ctx context.Context, t *Turn) (domain.MachineState, error) {
	t.Reply(msgWelcome)
	return t.Context.State, nil
}

func (f *ProductFlow) decodeFailed(t *Turn, err error) {
	f.logger.Warn("barcode decode failed", "user", t.Context.UserID, "err", err)
	metrics.DecodeFailures.Inc()
	if f.events != nil {
		f.events.Emit(bus.Event{
			Type:    bus.EventDecodeFailed,
			Source:  "engine.product",
			Payload: map[string]any{"user": t.Context.UserID},
		})
	}
}

// formatReport renders the score, producer, capital share and the four
// findings, each prefixed with a check or cross glyph, followed by the
// description.
func formatReport(r *domain.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ocena: %d/100\n", r.Score)
	fmt.Fprintf(&sb, "Producent: %s\n", r.Name)
	fmt.Fprintf(&sb, "Udział polskiego kapitału: %g%%\n", r.CapitalShare)
	sb.WriteString(glyph(r.ProducesInPoland) + " produkuje w Polsce\n")
	sb.WriteString(glyph(r.ResearchInPoland) + " prowadzi badania i rozwój w Polsce\n")
	sb.WriteString(glyph(r.RegisteredInPoland) + " zarejestrowana w Polsce\n")
	sb.WriteString(glyph(r.NotForeignSubsidiary) + " jest członkiem zagranicznego koncernu\n")
	if r.Description != nil {
		sb.WriteString(*r.Description)
	}
	return sb.String()
}

func glyph(ok bool) string {
	if ok {
		return checkMark
	}
	return crossMark
}
