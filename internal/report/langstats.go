package report

import (
	"context"
	"io"
	"path"

	"github.com/go-enry/go-enry/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/contestguard/harvester/internal/store"
)

// LanguageBreakdown classifies each artifact with enry and counts artifacts
// per detected language. Unreadable artifacts are skipped; the breakdown is
// informational only.
func LanguageBreakdown(ctx context.Context, st store.Store, keys []string) (map[string]int, error) {
	ctx, span := tracer.Start(ctx, "LanguageBreakdown")
	defer span.End()

	counts := make(map[string]int)
	for _, key := range keys {
		rc, err := st.Read(ctx, key)
		if err != nil {
			continue
		}
		content, err := io.ReadAll(rc)
		cerr := rc.Close()
		if err != nil || cerr != nil {
			continue
		}

		lang := enry.GetLanguage(path.Base(key), content)
		if lang == "" {
			lang = "unknown"
		}
		counts[lang]++
	}

	span.SetAttributes(attribute.Int("languages", len(counts)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "classified artifacts")
	return counts, nil
}
