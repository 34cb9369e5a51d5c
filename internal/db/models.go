package db

import (
	"time"

	"gorm.io/datatypes"
)

// Incident maps crash.incidents. One row per dedupe key.
type Incident struct {
	IncidentID           int64          `gorm:"column:incident_id;primaryKey;autoIncrement"`
	IncidentUUID         string         `gorm:"column:incident_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Slug                 string         `gorm:"column:slug;type:text;not null;uniqueIndex:incidents_slug_key"`
	Headline             string         `gorm:"column:headline;type:text;not null"`
	Summary              *string        `gorm:"column:summary;type:text"`
	City                 *string        `gorm:"column:city;type:text"`
	State                *string        `gorm:"column:state;type:char(2)"`
	Country              string         `gorm:"column:country;type:text;not null;default:US"`
	OccurredAt           time.Time      `gorm:"column:occurred_at;type:timestamptz;not null"`
	DedupeKey            string         `gorm:"column:dedupe_key;type:text;not null;uniqueIndex:incidents_dedupe_key_key"`
	ExtractedFacts       datatypes.JSON `gorm:"column:extracted_facts;type:jsonb"`
	SEOTitle             *string        `gorm:"column:seo_title;type:text"`
	SEODescription       *string        `gorm:"column:seo_description;type:text"`
	ArticleBody          *string        `gorm:"column:article_body;type:text"`
	ArticleQualityStatus string         `gorm:"column:article_quality_status;type:crash.article_quality_status;not null;default:OK"`
	ArticleQualityNotes  *string        `gorm:"column:article_quality_notes;type:text"`
	PrimaryKeyword       *string        `gorm:"column:primary_keyword;type:text"`
	SecondaryKeywords    datatypes.JSON `gorm:"column:secondary_keywords;type:jsonb"`
	EnrichedAt           *time.Time     `gorm:"column:enriched_at;type:timestamptz"`
	CreatedAt            time.Time      `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt            time.Time      `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Incident) TableName() string { return "crash.incidents" }

// HasArticle reports whether enrichment has stored a non-empty article body.
func (i Incident) HasArticle() bool {
	return i.ArticleBody != nil && *i.ArticleBody != ""
}

// IncidentSource maps crash.incident_sources. Rows are append-only.
type IncidentSource struct {
	IncidentSourceID int64     `gorm:"column:incident_source_id;primaryKey;autoIncrement"`
	IncidentID       int64     `gorm:"column:incident_id;type:bigint;not null;uniqueIndex:incident_sources_incident_url_key,priority:1"`
	SourceType       string    `gorm:"column:source_type;type:text;not null;default:rss"`
	URL              string    `gorm:"column:url;type:text;not null;uniqueIndex:incident_sources_incident_url_key,priority:2"`
	Title            string    `gorm:"column:title;type:text;not null"`
	Publisher        *string   `gorm:"column:publisher;type:text"`
	Snippet          *string   `gorm:"column:snippet;type:text"`
	PublishedAt      time.Time `gorm:"column:published_at;type:timestamptz;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (IncidentSource) TableName() string { return "crash.incident_sources" }

// IngestRun maps crash.ingest_runs.
type IngestRun struct {
	RunID              int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	IngestRunUUID      string     `gorm:"column:ingest_run_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	TriggeredBy        string     `gorm:"column:triggered_by;type:text;not null"`
	StartedAt          time.Time  `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt         *time.Time `gorm:"column:finished_at;type:timestamptz"`
	Status             string     `gorm:"column:status;type:crash.ingest_run_status;not null;default:running"`
	FeedsFetched       int        `gorm:"column:feeds_fetched;type:integer;not null;default:0"`
	FeedErrors         int        `gorm:"column:feed_errors;type:integer;not null;default:0"`
	ItemsFetched       int        `gorm:"column:items_fetched;type:integer;not null;default:0"`
	CandidatesAccepted int        `gorm:"column:candidates_accepted;type:integer;not null;default:0"`
	NewIncidents       int        `gorm:"column:new_incidents;type:integer;not null;default:0"`
	UpdatedIncidents   int        `gorm:"column:updated_incidents;type:integer;not null;default:0"`
	Skipped            int        `gorm:"column:skipped;type:integer;not null;default:0"`
	Errors             int        `gorm:"column:errors;type:integer;not null;default:0"`
	ErrorMessage       *string    `gorm:"column:error_message;type:text"`
	CreatedAt          time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (IngestRun) TableName() string { return "crash.ingest_runs" }

func autoMigrateModels() []any {
	return []any{
		&Incident{},
		&IncidentSource{},
		&IngestRun{},
	}
}
