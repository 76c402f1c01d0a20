package analysis

import (
	"strings"
	"time"
)

// InputKind tells where the analysed text came from.
type InputKind string

const (
	KindText  InputKind = "text"
	KindFile  InputKind = "file"
	KindURL   InputKind = "url"
	KindBatch InputKind = "batch"
)

// Label is one of the three canonical sentiment classes.
type Label string

const (
	Positive Label = "POSITIVE"
	Negative Label = "NEGATIVE"
	Neutral  Label = "NEUTRAL"
)

// Labels is the canonical output order of a score set.
var Labels = []Label{Positive, Negative, Neutral}

type SentimentScore struct {
	Label Label   `json:"label"`
	Score float64 `json:"score"`
}

type PrimarySentiment struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Language hasil deteksi bahasa
type Language struct {
	Name       string  `json:"language"`
	Confidence float64 `json:"confidence"`
	ISOCode    string  `json:"iso639_1"`
}

// Origin says which store currently holds a record.
type Origin int

const (
	OriginRemote Origin = iota
	OriginLocal
)

func (o Origin) String() string {
	if o == OriginLocal {
		return "local"
	}
	return "remote"
}

// LocalIDPrefix marks ids minted by the local fallback store.
const LocalIDPrefix = "local_"

// OriginOf recovers the origin from an id at the storage boundary.
func OriginOf(id string) Origin {
	if strings.HasPrefix(id, LocalIDPrefix) {
		return OriginLocal
	}
	return OriginRemote
}

// Source describes the provenance of an analysed input.
type Source struct {
	FileType    string `json:"fileType,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	URL         string `json:"url,omitempty"`
	BatchSize   int    `json:"batchSize,omitempty"`
	ArtifactURL string `json:"artifactUrl,omitempty"`
}

// Result is the pipeline output returned to API callers.
type Result struct {
	OriginalText     string           `json:"originalText"`
	DetectedLanguage Language         `json:"detectedLanguage"`
	TranslatedText   string           `json:"translatedText,omitempty"`
	SentimentScores  []SentimentScore `json:"sentimentScores"`
	PrimarySentiment PrimarySentiment `json:"primarySentiment"`
	Summary          string           `json:"summary"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
	Notice           string           `json:"notice,omitempty"`
}

// Record is a persisted analysis owned by a user.
type Record struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Kind      InputKind `json:"type"`
	Source    Source    `json:"metadata"`
	Tags      []string  `json:"tags"`
	Favorite  bool      `json:"favorite"`
	CreatedAt time.Time `json:"createdAt"`
	Origin    Origin    `json:"-"`
	Result
}

// NewRecord wraps a pipeline result for persistence.
func NewRecord(owner string, kind InputKind, src Source, res Result) *Record {
	return &Record{
		OwnerID: owner,
		Kind:    kind,
		Source:  src,
		Tags:    []string{},
		Result:  res,
	}
}

// Patch holds the user-editable fields of a record.
type Patch struct {
	Favorite *bool    `json:"favorite,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

func (p Patch) Apply(r *Record) {
	if p.Favorite != nil {
		r.Favorite = *p.Favorite
	}
	if p.Tags != nil {
		r.Tags = append([]string(nil), p.Tags...)
	}
}

// ListFilter narrows a history query.
type ListFilter struct {
	Limit         int
	FavoritesOnly bool
}

// Matches reports whether the record contains term in its text, summary or tags.
func (r *Record) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(r.OriginalText), term) ||
		strings.Contains(strings.ToLower(r.Summary), term) {
		return true
	}
	for _, t := range r.Tags {
		if strings.Contains(strings.ToLower(t), term) {
			return true
		}
	}
	return false
}

// Extraction is the transient output of a text extractor.
type Extraction struct {
	Text     string
	Kind     InputKind
	SourceID string
	Method   string
}

// SaveOutcome reports where a record ended up.
type SaveOutcome struct {
	ID     string
	Origin Origin
}

// RestoreReport summarises one reconciliation pass.
type RestoreReport struct {
	Reachable bool `json:"reachable"`
	Synced    int  `json:"synced"`
	Failed    int  `json:"failed"`
	Remaining int  `json:"remaining"`
	// Busy is set when another process was already restoring this owner.
	Busy bool `json:"busy,omitempty"`
}

// StorageStatus is the per-owner persistence health snapshot.
type StorageStatus struct {
	RemoteReachable bool `json:"remoteReachable"`
	LocalRecords    int  `json:"localRecords"`
}
