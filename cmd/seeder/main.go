package main

import (
	"bufio"
	"context"
	"flag"
	"iter"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/docseek"
	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/index"
)

// documents is the demo corpus. Blank lines separate documents.
var documents = []string{
	"Quarterly budget review. Marketing spend rose eleven percent against forecast.",
	"Quarterly budget review. Engineering headcount stayed within forecast.",
	"Quarterly budget review. Support contracts were renewed below forecast.",
	"Budget forecast for the next quarter assumes flat hosting costs.",
	"",
	"Invoice 2291 for consulting services is overdue by thirty days.",
	"Invoice 2292 payment received by wire transfer.",
	"Invoice reminder: payment for invoice 2291 is now overdue.",
	"Payment schedule for vendor invoices during the holiday period.",
	"",
	"Recipe: garlic butter pasta with parsley and lemon.",
	"Recipe: garlic butter noodles with chili flakes.",
	"Recipe: roasted garlic soup with butter croutons.",
	"",
	"Travel itinerary: train from Zurich to Milan, then ferry across Lake Como.",
	"Travel itinerary: mountain villages in the Dolomites by rental car.",
	"Travel checklist: passport, rail pass, hiking boots and rain jacket.",
	"",
	"Incident report: database failover took nine minutes during the outage.",
	"Incident report: cache cluster outage caused elevated latency.",
	"Postmortem for the database outage with followup action items.",
	"",
	"Meeting notes: hiring plan for the platform team.",
	"Meeting notes: roadmap planning for the search features.",
	"Onboarding guide for new engineers joining the platform team.",
	"",
	"Lease agreement for the downtown office, renewal due in March.",
	"Insurance policy covering office equipment and flood damage.",
}

var (
	seedFileName = flag.String("src", "", "file of seed documents, blank lines separate documents")
	dataDir      = flag.String("db", "./docseek-data", "data directory")
	users        = flag.Int("users", 2, "number of owners the documents are spread over")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}

// linesFromSlice returns an iterator over a slice of strings.
func linesFromSlice(lines []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}

type seedDocument struct {
	id     core.ID
	folder core.ID
	body   string
}

// documentsFrom numbers the non-blank lines of source as documents and
// uses each blank-line separated group as a folder.
func documentsFrom(source iter.Seq[string]) iter.Seq[seedDocument] {
	return func(yield func(seedDocument) bool) {
		var id core.ID
		folder := core.ID(1)
		blank := false
		for line := range source {
			line = strings.TrimSpace(line)
			if line == "" {
				blank = true
				continue
			}
			if blank && id > 0 {
				folder++
			}
			blank = false
			id++
			if !yield(seedDocument{id: id, folder: folder, body: line}) {
				return
			}
		}
	}
}

func title(body string) string {
	runes := []rune(body)
	return string(runes[:min(len(runes), 32)])
}

// seed stores metadata for every document and indexes them on the worker pool.
func seed(ctx context.Context, db *docseek.Database, indexer *index.Indexer, source iter.Seq[string], owners int) (int, error) {
	if owners < 1 {
		owners = 1
	}
	base := time.Now().UTC().Add(-24 * time.Hour)

	var tasks []index.Task
	for doc := range documentsFrom(source) {
		meta := &core.DocumentMeta{
			ID:        doc.id,
			OwnerID:   core.ID(int(doc.id-1)%owners + 1),
			FolderID:  doc.folder,
			Title:     title(doc.body),
			MimeType:  "text/plain",
			CreatedAt: base,
			UpdatedAt: base.Add(time.Duration(doc.id) * time.Minute),
		}
		if err := db.Metadata().PutDocument(ctx, meta); err != nil {
			return 0, err
		}
		tasks = append(tasks, index.Task{DocumentID: doc.id, Text: doc.body, MimeType: meta.MimeType})
	}

	indexed := 0
	for res := range indexer.Submit(ctx, tasks...) {
		if res.Err != nil {
			return indexed, res.Err
		}
		indexed++
	}
	return indexed, nil
}

func main() {
	flag.Parse()

	db, err := docseek.NewDatabase(*dataDir, docseek.WithoutAI())
	if err != nil {
		panic(err)
	}
	defer db.Close()

	indexer, err := db.NewIndexer()
	if err != nil {
		panic(err)
	}
	defer indexer.Release()

	ctx := context.Background()

	// Determine source of seed data
	var source iter.Seq[string]
	if seedFileName != nil && *seedFileName != "" {
		source, err = linesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	} else {
		source = linesFromSlice(documents)
	}

	n, err := seed(ctx, db, indexer, source, *users)
	if err != nil {
		panic(err)
	}
	slog.Info("seeded demo corpus", "documents", n, "data_dir", *dataDir)
}
