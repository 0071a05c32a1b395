// Package core provides the plugin record model, version ordering and package state.
package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Record describes one release of a plugin, either installed locally or
// published on the remote index. Records are values: updating a package means
// replacing its record.
type Record struct {
	Name                   string
	Version                string
	Author                 string
	AuthorEmail            string
	Summary                string
	Description            string
	DescriptionContentType string
	HomePage               string
	License                string
	Keywords               string
}

// Fields is the fixed list of keys used by ToMap and RecordFromMap.
var Fields = []string{
	"author",
	"author_email",
	"description",
	"description_content_type",
	"home_page",
	"keywords",
	"license",
	"name",
	"summary",
	"version",
}

// Requirement returns the pinned requirement string, e.g. "foo==1.0".
func (r Record) Requirement() string {
	return fmt.Sprintf("%s==%s", r.Name, r.Version)
}

// ParsedVersion returns the comparable form of the record's version.
func (r Record) ParsedVersion() Version {
	return ParseVersion(r.Version)
}

// Key returns the normalized package name used to merge local and remote views.
func (r Record) Key() string {
	return NormalizeName(r.Name)
}

// KeywordList returns the individual keywords of the record.
func (r Record) KeywordList() []string {
	return ParseKeywords(r.Keywords)
}

// Compare orders records by lower-cased name, then parsed version.
func (r Record) Compare(o Record) int {
	if c := strings.Compare(strings.ToLower(r.Name), strings.ToLower(o.Name)); c != 0 {
		return c
	}
	return r.ParsedVersion().Compare(o.ParsedVersion())
}

// Equal reports whether both records name the same release. Fields other
// than name and version are ignored.
func (r Record) Equal(o Record) bool {
	return r.Compare(o) == 0
}

// ToMap returns the cache representation of the record.
func (r Record) ToMap() map[string]any {
	return map[string]any{
		"author":                   r.Author,
		"author_email":             r.AuthorEmail,
		"description":              r.Description,
		"description_content_type": r.DescriptionContentType,
		"home_page":                r.HomePage,
		"keywords":                 r.Keywords,
		"license":                  r.License,
		"name":                     r.Name,
		"summary":                  r.Summary,
		"version":                  r.Version,
	}
}

// RecordFromMap builds a record from a metadata map. Missing or null fields
// become empty strings.
func RecordFromMap(m map[string]any) Record {
	get := func(key string) string {
		return stringValue(m[key])
	}
	return Record{
		Name:                   get("name"),
		Version:                get("version"),
		Author:                 get("author"),
		AuthorEmail:            get("author_email"),
		Summary:                get("summary"),
		Description:            get("description"),
		DescriptionContentType: get("description_content_type"),
		HomePage:               get("home_page"),
		License:                get("license"),
		Keywords:               get("keywords"),
	}
}

func stringValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return decodeBytes(v)
	case []string:
		return strings.Join(v, " ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			if s := stringValue(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}

func decodeBytes(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

// SortRecords sorts records ascending so the last element is the latest.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Compare(records[j]) < 0
	})
}

// SortVersions sorts the releases of one package ascending by version,
// ignoring differences in name spelling.
func SortVersions(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ParsedVersion().LessThan(records[j].ParsedVersion())
	})
}

// GroupRecords groups records by normalized name, each group sorted ascending
// by version.
func GroupRecords(records []Record) map[string][]Record {
	groups := make(map[string][]Record)
	for _, r := range records {
		key := r.Key()
		groups[key] = append(groups[key], r)
	}
	for _, g := range groups {
		SortVersions(g)
	}
	return groups
}

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizeName lower-cases a project name and collapses runs of "-", "_"
// and "." into a single "-".
func NormalizeName(name string) string {
	return nameSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// ParseKeywords splits a keyword string on commas and whitespace, which may
// be mixed.
func ParseKeywords(keywords string) []string {
	if keywords == "" {
		return nil
	}
	return strings.FieldsFunc(keywords, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// Status is the install relationship of a package.
type Status string

const (
	StatusNone      Status = "none"
	StatusInstalled Status = "installed"
	StatusOutdated  Status = "outdated"
	StatusUpdated   Status = "updated"
	StatusRemoved   Status = "removed"
)

// PackageState is the merged view of one package.
//
// Current is the latest installed record, Latest the latest record published
// on the index. Action is StatusUpdated or StatusRemoved after a successful
// install or uninstall in this session and empty otherwise; while set, it is
// also the Status.
type PackageState struct {
	Name    string
	Status  Status
	Current *Record
	Latest  *Record
	Action  Status
}

// Metadata returns the record used to describe the package: the installed
// one if any, the published one otherwise.
func (s *PackageState) Metadata() *Record {
	if s.Current != nil {
		return s.Current
	}
	return s.Latest
}

// DeriveStatus computes the status from the installed and published records.
func DeriveStatus(current, latest *Record) Status {
	switch {
	case current == nil:
		return StatusNone
	case latest != nil && latest.ParsedVersion().Compare(current.ParsedVersion()) > 0:
		return StatusOutdated
	default:
		return StatusInstalled
	}
}
