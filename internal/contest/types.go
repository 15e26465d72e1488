// Package contest holds the domain types shared across the harvesting
// pipeline.
package contest

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// One problem of a contest. Immutable once fetched.
type Question struct {
	ID        int    `json:"question_id"`
	TitleSlug string `json:"title_slug"`
}

// One user's attempt at one question on a ranking page.
type QuestionAttempt struct {
	QuestionID   int    `json:"question_id"`
	SubmissionID int64  `json:"submission_id"`
	DataRegion   string `json:"data_region"`
}

// One contestant's per-question summary on a ranking page. User handles are
// unique within a page but not globally; RankPage disambiguates.
type SubmissionRecord struct {
	User     string            `json:"user"`
	RankPage int               `json:"rank_page"`
	Attempts []QuestionAttempt `json:"attempts"`
}

// Attempt returns the attempt for questionID, if the record has one.
func (r SubmissionRecord) Attempt(questionID int) (QuestionAttempt, bool) {
	for _, a := range r.Attempts {
		if a.QuestionID == questionID {
			return a, true
		}
	}
	return QuestionAttempt{}, false
}

// ArtifactKey identifies one harvested code artifact. It is serialized into
// a filename only at the cache boundary; everywhere else the structured form
// is carried.
type ArtifactKey struct {
	RankPage     int
	User         string
	SubmissionID int64
}

// Encode renders the key as the cache filename stem.
func (k ArtifactKey) Encode() string {
	return fmt.Sprintf("%d:%s:%d", k.RankPage, k.User, k.SubmissionID)
}

func (k ArtifactKey) String() string {
	return k.Encode()
}

// ParseArtifactName decodes a key from an artifact filename or path. Any
// directory prefix and file extension are stripped first.
func ParseArtifactName(name string) (ArtifactKey, error) {
	stem := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if ext := path.Ext(stem); ext != "" {
		stem = strings.TrimSuffix(stem, ext)
	}

	parts := strings.SplitN(stem, ":", 3)
	if len(parts) != 3 {
		return ArtifactKey{}, fmt.Errorf("malformed artifact name %q", name)
	}

	page, err := strconv.Atoi(parts[0])
	if err != nil {
		return ArtifactKey{}, fmt.Errorf("malformed rank page in %q: %w", name, err)
	}
	sub, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return ArtifactKey{}, fmt.Errorf("malformed submission id in %q: %w", name, err)
	}
	if parts[1] == "" {
		return ArtifactKey{}, fmt.Errorf("empty user in %q", name)
	}

	return ArtifactKey{RankPage: page, User: parts[1], SubmissionID: sub}, nil
}
