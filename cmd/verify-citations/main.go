package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/yaowubarbara/airesearcher-sub001/internal/biblio"
	"github.com/yaowubarbara/airesearcher-sub001/internal/citeverify"
)

func main() {
	inPath := flag.String("in", "", "Manuscript markdown file to verify")
	outPath := flag.String("out", "", "Annotated output file (default: <in>.verified.md)")
	reportPath := flag.String("report", "", "Verification report file (default: <in>.report.md)")
	flag.Parse()

	if *inPath == "" {
		log.Fatal("missing required flag -in")
	}
	email := requiredEnv("CONTACT_EMAIL")

	text, err := os.ReadFile(*inPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engine := citeverify.NewEngine(
		biblio.NewCrossRefClient(email, nil),
		biblio.NewOpenAlexClient(email, nil),
	)
	defer engine.Close()
	result := engine.Run(ctx, string(text))

	annotated := defaultPath(*outPath, *inPath, ".verified.md")
	if err := os.WriteFile(annotated, []byte(result.AnnotatedText), 0o644); err != nil {
		log.Fatal(err)
	}
	report := defaultPath(*reportPath, *inPath, ".report.md")
	if err := os.WriteFile(report, []byte(result.Report.ToMarkdown()), 0o644); err != nil {
		log.Fatal(err)
	}

	log.Printf("%s", result.Report.Summary())
	log.Printf("annotated manuscript: %s", annotated)
	log.Printf("report: %s", report)
}

func defaultPath(explicit, in, suffix string) string {
	if explicit != "" {
		return explicit
	}
	return strings.TrimSuffix(in, ".md") + suffix
}

func requiredEnv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		log.Fatalf("missing required env var %s", key)
	}
	return v
}
