package scrape

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	reDocsID   = regexp.MustCompile(`/document/d/([a-zA-Z0-9_-]+)`)
	reDriveID  = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	reQueryID  = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	reDocsTrim = []*regexp.Regexp{
		regexp.MustCompile(`(?i)File\s+Edit\s+View\s+Tools\s+Help`),
		regexp.MustCompile(`(?i)Accessibility\s+Debug`),
		regexp.MustCompile(`(?i)Tab\s+External\s+Share`),
		regexp.MustCompile(`(?i)Sign in`),
		regexp.MustCompile(`(?is)JavaScript isn't enabled.*?Enable and reload`),
		regexp.MustCompile(`(?is)This browser version is no longer supported.*?upgrade to a supported browser`),
	}
)

// GoogleDocsExportURL rewrites a docs.google.com/document/d/<id> URL to its
// export endpoint in the given format ("txt" or "pdf").
func GoogleDocsExportURL(raw, format string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(strings.ToLower(u.Host), "docs.google.com") {
		return "", false
	}
	m := reDocsID.FindStringSubmatch(u.Path)
	if m == nil {
		return "", false
	}
	if format != "pdf" {
		format = "txt"
	}
	return "https://docs.google.com/document/d/" + m[1] + "/export?format=" + format, true
}

// GoogleDriveDownloadURL rewrites a drive.google.com file link (either
// /file/d/<id>/view or ?id=<id>) to the direct download endpoint.
func GoogleDriveDownloadURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(strings.ToLower(u.Host), "drive.google.com") {
		return "", false
	}
	var id string
	if m := reDriveID.FindStringSubmatch(u.Path); m != nil {
		id = m[1]
	} else if m := reQueryID.FindStringSubmatch("?" + u.RawQuery); m != nil {
		id = m[1]
	}
	if id == "" {
		return "", false
	}
	return "https://drive.google.com/uc?export=download&id=" + id, true
}

// cleanGoogleDocs strips editor chrome from a browser-rendered document.
func cleanGoogleDocs(text string) string {
	for _, re := range reDocsTrim {
		text = re.ReplaceAllString(text, "")
	}
	return normalizeText(text)
}
