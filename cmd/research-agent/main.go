package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/yaowubarbara/airesearcher-sub001/internal/biblio"
	"github.com/yaowubarbara/airesearcher-sub001/internal/citeverify"
	"github.com/yaowubarbara/airesearcher-sub001/internal/discover"
	"github.com/yaowubarbara/airesearcher-sub001/internal/llm"
	"github.com/yaowubarbara/airesearcher-sub001/internal/monitor"
	"github.com/yaowubarbara/airesearcher-sub001/internal/plan"
	"github.com/yaowubarbara/airesearcher-sub001/internal/progress"
	"github.com/yaowubarbara/airesearcher-sub001/internal/review"
	"github.com/yaowubarbara/airesearcher-sub001/internal/store"
	"github.com/yaowubarbara/airesearcher-sub001/internal/submission"
	"github.com/yaowubarbara/airesearcher-sub001/internal/tracing"
	"github.com/yaowubarbara/airesearcher-sub001/internal/workflow"
	"github.com/yaowubarbara/airesearcher-sub001/internal/writer"
)

func main() {
	dbPath := flag.String("db", "research.db", "SQLite database path")
	outDir := flag.String("out", "submission", "Submission output directory")
	issns := flag.String("issns", "", "Comma-separated journal ISSNs to monitor")
	statePath := flag.String("state", "", "Resume from a saved state file")
	approve := flag.Bool("approve", false, "Approve the human gate on a resumed run")
	maxRevisions := flag.Int("max-revisions", 2, "Review/revise loop cap")
	flag.Parse()

	// ANTHROPIC_API_KEY is checked inside the caller constructor.
	email := requiredEnv("CONTACT_EMAIL")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdown, err := tracing.Init(ctx, "research-agent")
	if err != nil {
		log.Fatal(err)
	}
	defer shutdown(context.Background())

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	usage := &llm.UsageRecorder{}
	caller, err := llm.NewAnthropicCallerFromEnv(usage)
	if err != nil {
		log.Fatal(err)
	}
	exec := llm.NewExecutor(caller)

	crossref := biblio.NewCrossRefClient(email, nil)
	openalex := biblio.NewOpenAlexClient(email, nil)

	broadcaster := progress.NewBroadcaster()
	events, cancelSub := broadcaster.Subscribe()
	defer cancelSub()
	go func() {
		for ev := range events {
			log.Printf("progress: %s %s", ev.Phase, ev.Message)
		}
	}()

	orch := workflow.NewOrchestrator(workflow.Config{
		Store:      db,
		Monitor:    monitor.New(openalex, db, splitISSNs(*issns), 0),
		Discoverer: discover.NewDiscoverer(exec, db),
		Planner:    plan.NewPlanner(exec, db),
		Writer:     writer.NewWriter(exec),
		Verifier:   citeverify.NewEngine(crossref, openalex),
		Reviewer:   review.NewReviewer(exec),
		Submitter:  submission.NewPackager(exec, *outDir),
		Progress:   broadcaster,
	})

	state := workflow.NewState(*maxRevisions)
	if *statePath != "" {
		state, err = loadState(*statePath)
		if err != nil {
			log.Fatal(err)
		}
	}
	if *approve {
		state.HumanApproved = true
	}

	final, err := orch.Run(ctx, state)
	if saveErr := saveState(statePathOrDefault(*statePath), final); saveErr != nil {
		log.Printf("state save failed: %v", saveErr)
	}
	u := usage.Snapshot()
	if uerr := db.RecordUsage(final.RunID, u.Calls, u.InputTokens, u.OutputTokens); uerr != nil {
		log.Printf("usage record failed: %v", uerr)
	}
	if err != nil && err != context.Canceled {
		log.Fatal(err)
	}

	if final.Phase == workflow.PhaseHumanReview {
		log.Printf("run paused for human review; rerun with -state %s -approve to continue",
			statePathOrDefault(*statePath))
		return
	}
	log.Printf("run %s finished (submitted=%v, revisions=%d, errors=%d)",
		final.RunID, final.Submitted, final.RevisionCount, len(final.Errors))
}

func splitISSNs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func statePathOrDefault(p string) string {
	if p != "" {
		return p
	}
	return "run_state.json"
}

func loadState(path string) (workflow.State, error) {
	var s workflow.State
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(b, &s)
	return s, err
}

func saveState(path string, s workflow.State) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func requiredEnv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		log.Fatalf("missing required env var %s", key)
	}
	return v
}
