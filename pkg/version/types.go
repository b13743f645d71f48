package version

import (
	"time"
)

// TimestampLayout is the ISO-8601 layout used for new records.
const TimestampLayout = time.RFC3339

// idTimeLayout renders the timestamp part of a version id.
const idTimeLayout = "20060102_150405"

// MemoryVersion is one immutable build-cycle record. Only IsActive and
// SystemPromptFile change after creation.
type MemoryVersion struct {
	VersionID        string                 `json:"version_id"`
	Timestamp        string                 `json:"timestamp"`
	Collections      map[string]int         `json:"collections"`
	DataHash         map[string]string      `json:"data_hash"`
	Metadata         map[string]interface{} `json:"metadata"`
	IsActive         bool                   `json:"is_active"`
	SystemPromptFile *string                `json:"system_prompt_file"`
}

// Time parses Timestamp. Records written without a zone are read as local time.
func (v MemoryVersion) Time() (time.Time, error) {
	layouts := []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"}
	var err error
	for _, layout := range layouts {
		var t time.Time
		t, err = time.ParseInLocation(layout, v.Timestamp, time.Local)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// PromptFile returns the recorded prompt path or "".
func (v MemoryVersion) PromptFile() string {
	if v.SystemPromptFile == nil {
		return ""
	}
	return *v.SystemPromptFile
}

// TotalPoints sums the point counts of every collection.
func (v MemoryVersion) TotalPoints() int {
	total := 0
	for _, n := range v.Collections {
		total += n
	}
	return total
}

func (v MemoryVersion) clone() MemoryVersion {
	out := v
	out.Collections = make(map[string]int, len(v.Collections))
	for k, n := range v.Collections {
		out.Collections[k] = n
	}
	out.DataHash = make(map[string]string, len(v.DataHash))
	for k, h := range v.DataHash {
		out.DataHash[k] = h
	}
	out.Metadata = make(map[string]interface{}, len(v.Metadata))
	for k, m := range v.Metadata {
		out.Metadata[k] = m
	}
	if v.SystemPromptFile != nil {
		p := *v.SystemPromptFile
		out.SystemPromptFile = &p
	}
	return out
}

// registryFile is the on-disk layout of the registry.
type registryFile struct {
	Versions []MemoryVersion `json:"versions"`
}

// CollectionChange is a point-count difference for one collection.
type CollectionChange struct {
	Before int `json:"before"`
	After  int `json:"after"`
	Delta  int `json:"delta"`
}

// HashChange is a content-hash difference for one category. Before and After are
// truncated to eight characters.
type HashChange struct {
	Changed bool   `json:"changed"`
	Before  string `json:"before"`
	After   string `json:"after"`
}

// Diff describes what changed between two versions. Only differing entries appear.
type Diff struct {
	From              string                      `json:"from"`
	To                string                      `json:"to"`
	CollectionChanges map[string]CollectionChange `json:"collection_changes"`
	HashChanges       map[string]HashChange       `json:"hash_changes"`
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.CollectionChanges) == 0 && len(d.HashChanges) == 0
}
