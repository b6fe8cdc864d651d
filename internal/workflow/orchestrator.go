package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/yaowubarbara/airesearcher-sub001/internal/biblio"
	"github.com/yaowubarbara/airesearcher-sub001/internal/citeparse"
	"github.com/yaowubarbara/airesearcher-sub001/internal/citeverify"
	"github.com/yaowubarbara/airesearcher-sub001/internal/progress"
	"github.com/yaowubarbara/airesearcher-sub001/internal/review"
	"github.com/yaowubarbara/airesearcher-sub001/internal/store"
	"github.com/yaowubarbara/airesearcher-sub001/internal/writer"
)

// Collaborator interfaces. The orchestrator owns sequencing only; every
// capability is injected so tests can fake it.
type (
	JournalMonitor interface {
		Poll(ctx context.Context) (int, error)
	}
	TopicDiscoverer interface {
		Discover(ctx context.Context) ([]store.Topic, error)
	}
	OutlinePlanner interface {
		Plan(ctx context.Context, topic *store.Topic) (*store.Plan, error)
	}
	ManuscriptWriter interface {
		WriteManuscript(ctx context.Context, req writer.ManuscriptRequest) (writer.ManuscriptResult, error)
	}
	CitationVerifier interface {
		Run(ctx context.Context, manuscript string) citeverify.Result
	}
	ManuscriptReviewer interface {
		Review(ctx context.Context, manuscript string) (review.Result, error)
	}
	Submitter interface {
		Submit(ctx context.Context, title, abstract, body string) error
	}
)

const defaultMaxRevisions = 2

// Orchestrator steps a run through the pipeline phases.
type Orchestrator struct {
	db        *store.Store
	monitor   JournalMonitor
	discover  TopicDiscoverer
	planner   OutlinePlanner
	writer    ManuscriptWriter
	verifier  CitationVerifier
	reviewer  ManuscriptReviewer
	submitter Submitter
	progress  *progress.Broadcaster
}

type Config struct {
	Store      *store.Store
	Monitor    JournalMonitor
	Discoverer TopicDiscoverer
	Planner    OutlinePlanner
	Writer     ManuscriptWriter
	Verifier   CitationVerifier
	Reviewer   ManuscriptReviewer
	Submitter  Submitter
	Progress   *progress.Broadcaster
}

func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{
		db:        cfg.Store,
		monitor:   cfg.Monitor,
		discover:  cfg.Discoverer,
		planner:   cfg.Planner,
		writer:    cfg.Writer,
		verifier:  cfg.Verifier,
		reviewer:  cfg.Reviewer,
		submitter: cfg.Submitter,
		progress:  cfg.Progress,
	}
}

// NewState starts a fresh run at MONITOR.
func NewState(maxRevisions int) State {
	if maxRevisions <= 0 {
		maxRevisions = defaultMaxRevisions
	}
	return State{
		RunID:        uuid.NewString(),
		Phase:        PhaseMonitor,
		MaxRevisions: maxRevisions,
	}
}

// Run steps the state machine until the run completes or pauses at the
// human gate without approval. The returned state is resumable: set
// HumanApproved and call Run again to continue past the gate.
func (o *Orchestrator) Run(ctx context.Context, s State) (State, error) {
	for s.Phase != PhaseDone {
		if s.Phase == PhaseHumanReview && !s.HumanApproved {
			o.emit(s.Phase, "awaiting human approval")
			return s, nil
		}
		next, err := o.Step(ctx, s)
		if err != nil {
			return s, err
		}
		s = next
	}
	o.emit(PhaseDone, "run complete")
	return s, nil
}

// Step executes the current phase and returns the merged next state.
// Phase failures append to the error log and degrade to a defined phase;
// only context cancellation aborts.
func (o *Orchestrator) Step(ctx context.Context, s State) (State, error) {
	ctx, span := otel.Tracer("workflow").Start(ctx, string(s.Phase))
	defer span.End()

	o.emit(s.Phase, "starting")
	var (
		u   Update
		err error
	)
	switch s.Phase {
	case PhaseMonitor:
		u, err = o.stepMonitor(ctx, s)
	case PhaseIndex:
		u, err = o.stepIndex(ctx, s)
	case PhaseDiscover:
		u, err = o.stepDiscover(ctx, s)
	case PhaseAcquireRefs:
		u, err = o.stepAcquireRefs(ctx, s)
	case PhasePlan:
		u, err = o.stepPlan(ctx, s)
	case PhaseWrite:
		u, err = o.stepWrite(ctx, s)
	case PhaseVerify:
		u, err = o.stepVerify(ctx, s)
	case PhaseVerifyCitations:
		u, err = o.stepVerifyCitations(ctx, s)
	case PhaseReview:
		u, err = o.stepReview(ctx, s)
	case PhaseHumanReview:
		u, err = o.stepHumanReview(ctx, s)
	case PhaseSubmit:
		u, err = o.stepSubmit(ctx, s)
	default:
		return s, &PhaseError{Phase: s.Phase, Err: fmt.Errorf("unknown phase")}
	}
	if err != nil {
		return s, &PhaseError{Phase: s.Phase, Err: err}
	}
	return Apply(s, u), nil
}

func (o *Orchestrator) stepMonitor(ctx context.Context, s State) (Update, error) {
	added, err := o.monitor.Poll(ctx)
	if err != nil {
		// Degraded: stale corpus is still usable.
		return Update{
			Phase:  phasePtr(PhaseIndex),
			Errors: []ErrorRecord{record(PhaseMonitor, err)},
		}, ctxErr(ctx, err)
	}
	log.Printf("workflow: monitor stored %d new papers", added)
	return Update{Phase: phasePtr(PhaseIndex)}, nil
}

// stepIndex confirms the corpus is non-empty before topic work begins.
func (o *Orchestrator) stepIndex(ctx context.Context, s State) (Update, error) {
	papers, err := o.db.ListPapers(1)
	if err != nil {
		return endRun(PhaseIndex, err), ctxErr(ctx, err)
	}
	if len(papers) == 0 {
		log.Printf("workflow: no papers indexed, ending run")
		return endRun(PhaseIndex, errors.New("empty corpus")), nil
	}
	return Update{Phase: phasePtr(PhaseDiscover)}, nil
}

func (o *Orchestrator) stepDiscover(ctx context.Context, s State) (Update, error) {
	if _, err := o.discover.Discover(ctx); err != nil {
		if cerr := ctxErr(ctx, err); cerr != nil {
			return Update{}, cerr
		}
		log.Printf("workflow: discovery failed: %v", err)
	}
	topic, err := o.db.BestCandidateTopic()
	if errors.Is(err, store.ErrNotFound) {
		// No viable topic ends the run rather than writing about nothing.
		return endRun(PhaseDiscover, errors.New("no candidate topics")), nil
	}
	if err != nil {
		return endRun(PhaseDiscover, err), ctxErr(ctx, err)
	}
	if err := o.db.SetTopicStatus(topic.TopicID, "selected"); err != nil {
		return endRun(PhaseDiscover, err), ctxErr(ctx, err)
	}
	return Update{
		Phase:      phasePtr(PhaseAcquireRefs),
		TopicID:    strPtr(topic.TopicID),
		TopicTitle: strPtr(topic.Title),
	}, nil
}

// stepAcquireRefs assembles the reference list the writer may cite from.
func (o *Orchestrator) stepAcquireRefs(ctx context.Context, s State) (Update, error) {
	papers, err := o.db.ListPapers(50)
	if err != nil {
		return endRun(PhaseAcquireRefs, err), ctxErr(ctx, err)
	}
	var b strings.Builder
	for _, p := range papers {
		fmt.Fprintf(&b, "- %s. %s. %d.\n", strings.Join(p.Authors, ", "), p.Title, p.Year)
	}
	return Update{
		Phase:      phasePtr(PhasePlan),
		References: strPtr(b.String()),
	}, nil
}

func (o *Orchestrator) stepPlan(ctx context.Context, s State) (Update, error) {
	topic, err := o.db.GetTopic(s.TopicID)
	if err != nil {
		return endRun(PhasePlan, err), ctxErr(ctx, err)
	}
	p, err := o.planner.Plan(ctx, topic)
	if err != nil {
		if cerr := ctxErr(ctx, err); cerr != nil {
			return Update{}, cerr
		}
		log.Printf("workflow: planning failed, ending run: %v", err)
		return endRun(PhasePlan, err), nil
	}
	return Update{
		Phase:  phasePtr(PhaseWrite),
		PlanID: strPtr(p.PlanID),
		Title:  strPtr(p.Title),
	}, nil
}

func (o *Orchestrator) stepWrite(ctx context.Context, s State) (Update, error) {
	plan, err := o.db.GetPlanForTopic(s.TopicID)
	if err != nil {
		return endRun(PhaseWrite, err), ctxErr(ctx, err)
	}
	sections, err := plan.Sections()
	if err != nil {
		return endRun(PhaseWrite, err), nil
	}
	specs := make([]writer.SectionSpec, 0, len(sections))
	for _, sec := range sections {
		specs = append(specs, writer.SectionSpec{Name: sec.Name, Outline: sec.Outline})
	}

	memory := o.reflexionMemory(s.TopicID)
	result, err := o.writer.WriteManuscript(ctx, writer.ManuscriptRequest{
		Topic:      s.TopicTitle,
		Title:      plan.Title,
		Sections:   specs,
		References: s.References,
		Memory:     memory,
	})
	if err != nil {
		if cerr := ctxErr(ctx, err); cerr != nil {
			return Update{}, cerr
		}
		log.Printf("workflow: writing failed, ending run: %v", err)
		return endRun(PhaseWrite, err), nil
	}

	m := &store.Manuscript{
		TopicID:  s.TopicID,
		Revision: s.RevisionCount,
		Title:    result.Title,
		Abstract: result.Abstract,
		Body:     result.Body,
	}
	if err := o.db.SaveManuscript(m); err != nil {
		return endRun(PhaseWrite, err), ctxErr(ctx, err)
	}
	return Update{
		Phase:      phasePtr(PhaseVerify),
		Title:      strPtr(result.Title),
		Abstract:   strPtr(result.Abstract),
		Manuscript: strPtr(result.Body),
	}, nil
}

// stepVerify cross-checks cited author groups against the stored corpus
// and records a coverage rate. Advisory only; it never blocks the run.
func (o *Orchestrator) stepVerify(ctx context.Context, s State) (Update, error) {
	rate, err := o.referenceRate(s.Manuscript)
	if err != nil {
		// Advisory phase: a store failure here never ends the run.
		return Update{
			Phase:  phasePtr(PhaseVerifyCitations),
			Errors: []ErrorRecord{record(PhaseVerify, err)},
		}, ctxErr(ctx, err)
	}
	log.Printf("workflow: reference coverage %.2f", rate)
	return Update{
		Phase:   phasePtr(PhaseVerifyCitations),
		RefRate: floatPtr(rate),
	}, nil
}

func (o *Orchestrator) stepVerifyCitations(ctx context.Context, s State) (Update, error) {
	result := o.verifier.Run(ctx, s.Manuscript)
	log.Printf("workflow: %s", result.Report.Summary())
	return Update{
		Phase:          phasePtr(PhaseReview),
		Manuscript:     strPtr(result.AnnotatedText),
		CitationReport: &result.Report,
	}, nil
}

// stepReview routes: passed, or out of revision budget, goes to the human
// gate; otherwise back to WRITE with the revision counted and the review's
// required changes banked as reflexion lessons.
func (o *Orchestrator) stepReview(ctx context.Context, s State) (Update, error) {
	res, err := o.reviewer.Review(ctx, s.Manuscript)
	if err != nil {
		if cerr := ctxErr(ctx, err); cerr != nil {
			return Update{}, cerr
		}
		log.Printf("workflow: review failed, forwarding to human gate: %v", err)
		return Update{
			Phase:  phasePtr(PhaseHumanReview),
			Errors: []ErrorRecord{record(PhaseReview, err)},
		}, nil
	}

	if res.Passed || s.RevisionCount >= s.MaxRevisions {
		return Update{
			Phase:      phasePtr(PhaseHumanReview),
			LastReview: &res,
		}, nil
	}

	for _, change := range res.RequiredChanges {
		note := &store.ReflexionNote{TopicID: s.TopicID, Lesson: change}
		if err := o.db.SaveReflexionNote(note); err != nil {
			log.Printf("workflow: reflexion note dropped: %v", err)
		}
	}
	return Update{
		Phase:         phasePtr(PhaseWrite),
		LastReview:    &res,
		RevisionCount: intPtr(s.RevisionCount + 1),
	}, nil
}

func (o *Orchestrator) stepHumanReview(ctx context.Context, s State) (Update, error) {
	if !s.HumanApproved {
		// Run pauses here; Step on an unapproved gate is a no-op.
		return Update{}, nil
	}
	return Update{Phase: phasePtr(PhaseSubmit)}, nil
}

func (o *Orchestrator) stepSubmit(ctx context.Context, s State) (Update, error) {
	if err := o.submitter.Submit(ctx, s.Title, s.Abstract, s.Manuscript); err != nil {
		if cerr := ctxErr(ctx, err); cerr != nil {
			return Update{}, cerr
		}
		return endRun(PhaseSubmit, err), nil
	}
	return Update{
		Phase:     phasePtr(PhaseDone),
		Submitted: boolPtr(true),
	}, nil
}

func (o *Orchestrator) reflexionMemory(topicID string) string {
	notes, err := o.db.ReflexionNotes(topicID, 10)
	if err != nil {
		log.Printf("workflow: reflexion load failed: %v", err)
		return ""
	}
	var b strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&b, "- %s\n", n.Lesson)
	}
	return b.String()
}

// referenceRate is the fraction of cited author/title groups resolvable
// against the stored corpus.
func (o *Orchestrator) referenceRate(manuscript string) (float64, error) {
	groups := citedGroups(manuscript)
	if len(groups) == 0 {
		return 1.0, nil
	}
	papers, err := o.db.ListPapers(500)
	if err != nil {
		return 0, err
	}
	found := 0
	for _, key := range groups {
		for _, p := range papers {
			if biblio.AuthorMatches(key, p.Authors) || biblio.TitleMatches(key, []string{p.Title}) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(groups)), nil
}

// citedGroups lists the distinct author/title keys cited in the text.
func citedGroups(manuscript string) []string {
	groups := citeparse.Group(citeparse.Parse(manuscript))
	keys := make([]string, 0, len(groups))
	for k := range groups {
		if k != "unknown" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (o *Orchestrator) emit(phase Phase, message string) {
	if o.progress != nil {
		o.progress.Publish(string(phase), message)
	}
}

func record(phase Phase, err error) ErrorRecord {
	return ErrorRecord{Phase: phase, Message: err.Error(), At: time.Now().UTC()}
}

// endRun degrades a phase failure to DONE with the failure logged. The run
// terminates in a defined phase instead of raising to the caller.
func endRun(phase Phase, err error) Update {
	return Update{
		Phase:  phasePtr(PhaseDone),
		Errors: []ErrorRecord{record(phase, err)},
	}
}

// ctxErr surfaces cancellation as a hard failure while letting other
// errors degrade.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return nil
}
