package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/contestguard/harvester/internal/store"
)

type PublisherConfig struct {
	// Contest slug, used for the report filename and all ranklist links
	Contest string
	// Site base for profile/submission/ranklist links, e.g. https://leetcode.com
	SiteBase string
}

// Publisher renders the row list as a markdown table into the per-contest
// report document and keeps the running index current.
type Publisher struct {
	docs store.Store
	cfg  PublisherConfig
}

func NewPublisher(docs store.Store, cfg PublisherConfig) *Publisher {
	return &Publisher{docs: docs, cfg: cfg}
}

const indexKey = "README.md"

// Publish writes docs/{contest}.md and appends the one-line summary to the
// running index. languages may be nil when no breakdown was computed.
func (p *Publisher) Publish(ctx context.Context, rows []Row, languages map[string]int) error {
	ctx, span := tracer.Start(ctx, "Publisher.Publish", trace.WithAttributes(
		attribute.String("contest", p.cfg.Contest),
		attribute.Int("rows", len(rows)),
	))
	defer span.End()

	doc := p.render(rows, languages)
	if err := p.docs.Write(ctx, p.cfg.Contest+".md", strings.NewReader(doc)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write report document")
		return err
	}

	if err := p.appendIndexLine(ctx, len(rows)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update index")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "published report")
	return nil
}

func (p *Publisher) render(rows []Row, languages map[string]int) string {
	var b bytes.Buffer

	fmt.Fprintf(&b, "# %s\n\n", p.cfg.Contest)
	fmt.Fprintf(&b, "%d flagged pair(s).\n\n", len(rows))

	if len(rows) > 0 {
		b.WriteString("| User 1 | Submission 1 | Ranklist 1 | User 2 | Submission 2 | Ranklist 2 | Similarity |\n")
		b.WriteString("| --- | --- | --- | --- | --- | --- | --- |\n")
		for _, row := range rows {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
				p.profileLink(row.User1),
				p.submissionLink(row.Submission1),
				p.ranklistLink(row.Rank1),
				p.profileLink(row.User2),
				p.submissionLink(row.Submission2),
				p.ranklistLink(row.Rank2),
				FormatPercent(row.Score),
			)
		}
	}

	if len(languages) > 0 {
		b.WriteString("\n## Harvested languages\n\n")
		b.WriteString("| Language | Artifacts |\n")
		b.WriteString("| --- | --- |\n")

		names := make([]string, 0, len(languages))
		for name := range languages {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "| %s | %d |\n", name, languages[name])
		}
	}

	return b.String()
}

func (p *Publisher) profileLink(user string) string {
	return fmt.Sprintf("[%s](%s/%s/)", user, p.cfg.SiteBase, user)
}

func (p *Publisher) submissionLink(id int64) string {
	return fmt.Sprintf("[%d](%s/submissions/detail/%d/)", id, p.cfg.SiteBase, id)
}

func (p *Publisher) ranklistLink(page int) string {
	return fmt.Sprintf("[page %d](%s/contest/%s/ranking/%d/)", page, p.cfg.SiteBase, p.cfg.Contest, page)
}

// appendIndexLine appends "contest: N match(es)" to the running index,
// creating it when absent. The index is the only document that is rewritten
// rather than written once.
func (p *Publisher) appendIndexLine(ctx context.Context, count int) error {
	var existing []byte

	ok, err := p.docs.Exists(ctx, indexKey)
	if err != nil {
		return err
	}
	if ok {
		rc, err := p.docs.Read(ctx, indexKey)
		if err != nil {
			return err
		}
		existing, err = io.ReadAll(rc)
		cerr := rc.Close()
		if err != nil {
			return err
		}
		if cerr != nil {
			return cerr
		}
	}

	var b bytes.Buffer
	b.Write(existing)
	if len(existing) > 0 && !bytes.HasSuffix(existing, []byte("\n")) {
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "- [%s](%s.md): %d match(es)\n", p.cfg.Contest, p.cfg.Contest, count)

	return p.docs.Write(ctx, indexKey, bytes.NewReader(b.Bytes()))
}
