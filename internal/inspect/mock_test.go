package inspect

import (
	"context"
	"time"

	"github.com/sells-group/seo-monitor/internal/model"
)

// fakeStore implements IssueWriter for testing.
type fakeStore struct {
	active     []model.IssueRecord
	upsertErr  error
	resolveErr error

	upserts  []model.IssueRecord
	resolved []string
	verified []string
	checks   []model.URLCheck
}

func (f *fakeStore) UpsertActive(_ context.Context, rec *model.IssueRecord) (bool, error) {
	if f.upsertErr != nil {
		return false, f.upsertErr
	}
	created := true
	for _, u := range f.upserts {
		if u.URL == rec.URL && u.IssueType == rec.IssueType {
			created = false
		}
	}
	f.upserts = append(f.upserts, *rec)
	return created, nil
}

func (f *fakeStore) FindActiveByURL(_ context.Context, _, _ string) ([]model.IssueRecord, error) {
	return f.active, nil
}

func (f *fakeStore) Resolve(_ context.Context, id string, _ time.Time, _ model.ResolutionType) error {
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.resolved = append(f.resolved, id)
	return nil
}

func (f *fakeStore) MarkVerified(_ context.Context, _, url string, _ time.Time) error {
	f.verified = append(f.verified, url)
	return nil
}

func (f *fakeStore) RecordCheck(_ context.Context, check model.URLCheck) error {
	f.checks = append(f.checks, check)
	return nil
}
