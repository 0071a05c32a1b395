package local

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/git-pkgs/plugins/internal/core"
	"gopkg.in/ini.v1"
)

// parseJSONMetadata reads a PEP 426 metadata.json document. The
// python.details extension supplies the description file, home page and
// author contact.
func parseJSONMetadata(data []byte, read func(string) ([]byte, error)) (core.Record, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return core.Record{}, fmt.Errorf("parsing metadata.json: %w", err)
	}
	r := core.RecordFromMap(doc)

	details, _ := dig(doc, "extensions", "python.details").(map[string]any)
	if details == nil {
		return r, nil
	}
	if name, ok := dig(details, "document_names", "description").(string); ok {
		if b, err := read(name); err == nil {
			r.Description = strings.ToValidUTF8(string(b), "�")
		}
	}
	if home, ok := dig(details, "project_urls", "Home").(string); ok {
		r.HomePage = home
	}
	contacts, _ := details["contacts"].([]any)
	for _, c := range contacts {
		contact, _ := c.(map[string]any)
		if contact["role"] != "author" {
			continue
		}
		r.Author, _ = contact["name"].(string)
		r.AuthorEmail, _ = contact["email"].(string)
	}
	return r, nil
}

func dig(m map[string]any, keys ...string) any {
	var v any = m
	for _, k := range keys {
		mm, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = mm[k]
	}
	return v
}

// parseHeaderMetadata reads an RFC 822 style METADATA or PKG-INFO file.
// Header values may be folded over several lines; a folded Description
// keeps its line breaks. A message body, when present, is the description.
func parseHeaderMetadata(data []byte) core.Record {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(text, "\n")

	fields := make(map[string]string)
	var projectURLs []string
	key := ""
	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			i++
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			switch key {
			case "":
			case "description":
				fields[key] += "\n" + unfoldDescription(line)
			default:
				fields[key] += " " + strings.TrimSpace(line)
			}
			continue
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			key = ""
			continue
		}
		key = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if key == "project-url" {
			projectURLs = append(projectURLs, value)
			key = ""
			continue
		}
		if _, seen := fields[key]; seen {
			key = ""
			continue
		}
		fields[key] = value
	}

	r := core.Record{
		Name:                   fields["name"],
		Version:                fields["version"],
		Author:                 fields["author"],
		AuthorEmail:            fields["author-email"],
		Summary:                fields["summary"],
		Description:            fields["description"],
		DescriptionContentType: fields["description-content-type"],
		HomePage:               fields["home-page"],
		License:                fields["license"],
		Keywords:               fields["keywords"],
	}
	if body := strings.TrimRight(strings.Join(lines[i:], "\n"), "\n"); r.Description == "" && body != "" {
		r.Description = body
	}
	if r.HomePage == "" {
		r.HomePage = homeFromProjectURLs(projectURLs)
	}
	return r
}

// unfoldDescription strips the 8 space indent and optional "|" marker used
// when folding a multi-line description.
func unfoldDescription(line string) string {
	line = strings.TrimPrefix(line, "        ")
	return strings.TrimPrefix(line, "|")
}

func homeFromProjectURLs(urls []string) string {
	for _, u := range urls {
		label, target, ok := strings.Cut(u, ",")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "home", "homepage":
			return strings.TrimSpace(target)
		}
	}
	return ""
}

// hasEntryPoints reports whether an entry_points.txt file declares at least
// one entry point in the given group.
func hasEntryPoints(data []byte, group string) (bool, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:      "=",
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
	}, data)
	if err != nil {
		return false, fmt.Errorf("parsing entry points: %w", err)
	}
	sec, err := f.GetSection(group)
	if err != nil {
		return false, nil
	}
	return len(sec.Keys()) > 0, nil
}
