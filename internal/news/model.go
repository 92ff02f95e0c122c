// Package news holds the domain types shared by the collector, the pipeline
// and the stores: normalized feed items, corroborated event clusters, digest
// rows and the fixed vocabularies used for classification.
package news

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Area is a geographic label attached to security events.
type Area string

// SecurityStatus is the lifecycle label attached to security events.
type SecurityStatus string

const (
	StatusOpen       SecurityStatus = "פתוח"
	StatusInProgress SecurityStatus = "בטיפול"
	StatusOver       SecurityStatus = "נגמר"
)

// Areas lists every area label a cluster may carry.
var Areas = []Area{"מרכז", "ירושלים", "צפון", "דרום", "שפלה", "השרון", "עוטף", "גוש דן"}

// SecurityStatuses lists every status label a cluster may carry.
var SecurityStatuses = []SecurityStatus{StatusOpen, StatusInProgress, StatusOver}

// ValidArea reports whether a is one of Areas.
func ValidArea(a Area) bool {
	for _, v := range Areas {
		if v == a {
			return true
		}
	}
	return false
}

// ValidSecurityStatus reports whether s is one of SecurityStatuses.
func ValidSecurityStatus(s SecurityStatus) bool {
	for _, v := range SecurityStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Placeholder is the digest text used when no vital event is corroborated.
const Placeholder = "נכון לעדכון האחרון, אין כרגע עדכונים חיוניים חריגים שדורשים פעולה מיידית מצד הציבור. נמשיך לעקוב ולעדכן כאן בשפה רגועה וברורה."

// MaxSnippetRunes caps SourceItem.ContentSnippet.
const MaxSnippetRunes = 450

// SourceItem is a single normalized feed entry.
type SourceItem struct {
	Source         string    `json:"source"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	PublishedAt    time.Time `json:"published_at"`
	FetchedAt      time.Time `json:"fetched_at"`
	ContentSnippet string    `json:"content_snippet"`
	Hash           string    `json:"hash"`
}

// ItemHash is the hex SHA-256 of "source|url|title".
func ItemHash(source, url, title string) string {
	sum := sha256.Sum256([]byte(source + "|" + url + "|" + title))
	return hex.EncodeToString(sum[:])
}

// EventCluster is a candidate real-world event backed by item URLs.
type EventCluster struct {
	EventKey        string          `json:"event_key"`
	VitalNow        bool            `json:"vital_now"`
	Area            *Area           `json:"area"`
	SecurityStatus  *SecurityStatus `json:"security_status"`
	Sources         []string        `json:"sources"`
	SummarySentence string          `json:"summary_sentence"`
}

// DigestRow is one persisted digest.
type DigestRow struct {
	ID         string    `json:"id,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	DigestText string    `json:"digest_text"`
	Sources    []string  `json:"sources"`
}

// TopUpdate is the read-side projection of a SourceItem.
type TopUpdate struct {
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Source         string    `json:"source"`
	PublishedAt    time.Time `json:"published_at"`
	ContentSnippet string    `json:"content_snippet,omitempty"`
}

// ToTopUpdate projects an item for the read path.
func (it *SourceItem) ToTopUpdate() TopUpdate {
	return TopUpdate{
		Title:          it.Title,
		URL:            it.URL,
		Source:         it.Source,
		PublishedAt:    it.PublishedAt,
		ContentSnippet: it.ContentSnippet,
	}
}
