package enrich

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"

	"horse.fit/crashreports/internal/db"
)

type stubGenerator struct {
	configured bool
	respond    func(req ChatRequest) (string, error)

	mu           sync.Mutex
	factCalls    int
	articleCalls int
}

func (g *stubGenerator) Configured() bool { return g.configured }

func (g *stubGenerator) Complete(_ context.Context, req ChatRequest) (string, error) {
	g.mu.Lock()
	if req.JSON {
		g.factCalls++
	} else {
		g.articleCalls++
	}
	g.mu.Unlock()
	return g.respond(req)
}

type stubStore struct {
	incidents map[int64]*db.Incident
	sources   map[int64][]db.IncidentSource

	factsUpdates   map[int64]datatypes.JSON
	articleUpdates map[int64][]db.ArticleUpdate
	qualityUpdates map[int64][]string
}

func newStubStore(incidents ...db.Incident) *stubStore {
	s := &stubStore{
		incidents:      make(map[int64]*db.Incident),
		sources:        make(map[int64][]db.IncidentSource),
		factsUpdates:   make(map[int64]datatypes.JSON),
		articleUpdates: make(map[int64][]db.ArticleUpdate),
		qualityUpdates: make(map[int64][]string),
	}
	for i := range incidents {
		inc := incidents[i]
		s.incidents[inc.IncidentID] = &inc
		s.sources[inc.IncidentID] = []db.IncidentSource{{
			IncidentID: inc.IncidentID,
			URL:        "https://news.example/" + inc.Slug,
			Title:      inc.Headline,
		}}
	}
	return s
}

func (s *stubStore) GetIncident(_ context.Context, id int64) (*db.Incident, error) {
	inc, ok := s.incidents[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *inc
	return &copied, nil
}

func (s *stubStore) ListSources(_ context.Context, id int64) ([]db.IncidentSource, error) {
	return s.sources[id], nil
}

func (s *stubStore) UpdateFacts(_ context.Context, id int64, facts datatypes.JSON, _ time.Time) error {
	s.factsUpdates[id] = facts
	s.incidents[id].ExtractedFacts = facts
	return nil
}

func (s *stubStore) UpdateArticle(_ context.Context, id int64, article db.ArticleUpdate, _ time.Time) error {
	s.articleUpdates[id] = append(s.articleUpdates[id], article)
	body := article.Body
	s.incidents[id].ArticleBody = &body
	s.incidents[id].ArticleQualityStatus = article.QualityStatus
	return nil
}

func (s *stubStore) UpdateQuality(_ context.Context, id int64, status, notes string, _ time.Time) error {
	s.qualityUpdates[id] = append(s.qualityUpdates[id], status+"|"+notes)
	s.incidents[id].ArticleQualityStatus = status
	return nil
}

func (s *stubStore) missing() []db.Incident {
	out := make([]db.Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		if !inc.HasArticle() || inc.ArticleQualityStatus == "FAILED" {
			out = append(out, *inc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IncidentID < out[j].IncidentID })
	return out
}

func (s *stubStore) ListIncidentsMissingArticle(_ context.Context, afterID int64, limit int) ([]db.Incident, error) {
	page := make([]db.Incident, 0, limit)
	for _, inc := range s.missing() {
		if inc.IncidentID <= afterID {
			continue
		}
		page = append(page, inc)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (s *stubStore) CountIncidentsMissingArticle(context.Context) (int64, error) {
	return int64(len(s.missing())), nil
}

func testIncident(id int64, slug, headline string) db.Incident {
	city, state := "Denver", "CO"
	return db.Incident{
		IncidentID:           id,
		Slug:                 slug,
		Headline:             headline,
		City:                 &city,
		State:                &state,
		Country:              "US",
		OccurredAt:           time.Date(2024, 1, 15, 15, 45, 0, 0, time.UTC),
		ArticleQualityStatus: "OK",
	}
}

// completeArticle renders every required heading with a full paragraph and
// appends extra to the first section.
func completeArticle(extra string) string {
	var b strings.Builder
	for i, heading := range RequiredHeadings {
		b.WriteString("## ")
		b.WriteString(heading)
		b.WriteString("\n\n")
		b.WriteString("Officials released limited information about this section of the incident, and this summary will be updated as records become available to the public.\n\n")
		if i == 0 && extra != "" {
			b.WriteString(extra)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func articleWithout(heading string) string {
	var b strings.Builder
	for _, h := range RequiredHeadings {
		if h == heading {
			continue
		}
		b.WriteString("## ")
		b.WriteString(h)
		b.WriteString("\n\nOfficials released limited information about this section of the incident, and this summary will be updated as records become available to the public.\n\n")
	}
	return b.String()
}

const metaBlock = "```json\n{\"seoTitle\":\"Two-vehicle crash on I-25 in Denver\",\"metaDescription\":\"What we know about the I-25 crash.\",\"primaryKeyword\":\"denver car crash\",\"secondaryKeywords\":[\"i-25 crash\",\" \"]}\n```\n\n"
