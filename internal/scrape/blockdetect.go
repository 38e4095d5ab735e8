package scrape

import (
	"bytes"
	"net/http"
)

// blockKind names the protection a fetched page ran into. The empty value
// means the page looks like real content.
type blockKind string

const (
	notBlocked     blockKind = ""
	blockChallenge blockKind = "waf_challenge"
	blockCaptcha   blockKind = "captcha"
	blockScript    blockKind = "script_shell"
	blockLogin     blockKind = "login_wall"
)

// Interstitials are small. A real posting page can carry a captcha widget
// in its application form, so only short bodies are checked for one.
const (
	interstitialMaxBytes = 20 << 10
	shellMaxBytes        = 2000
)

// wafHeaders mark responses served by a bot-protection edge.
var wafHeaders = []string{"Cf-Ray", "Cf-Cache-Status", "X-Iinfo", "X-Akamai-Session-Info"}

type bodyRule struct {
	kind     blockKind
	maxBytes int
	all      [][]byte
}

// bodyRules are checked in order against the lowercased body. A rule
// matches when the body is within maxBytes (0 = any size) and contains
// every marker in all.
var bodyRules = []bodyRule{
	{kind: blockChallenge, all: [][]byte{[]byte("checking your browser")}},
	{kind: blockChallenge, all: [][]byte{[]byte("cf-browser-verification")}},
	{kind: blockChallenge, all: [][]byte{[]byte("cloudflare"), []byte("challenge")}},
	{kind: blockChallenge, maxBytes: interstitialMaxBytes, all: [][]byte{[]byte("incapsula incident")}},
	{kind: blockCaptcha, maxBytes: interstitialMaxBytes, all: [][]byte{[]byte("captcha")}},
	{kind: blockCaptcha, maxBytes: interstitialMaxBytes, all: [][]byte{[]byte("verify you are human")}},
	{kind: blockLogin, maxBytes: interstitialMaxBytes, all: [][]byte{[]byte("sign in to view")}},
	{kind: blockLogin, maxBytes: interstitialMaxBytes, all: [][]byte{[]byte("log in to apply")}},
	{kind: blockScript, maxBytes: shellMaxBytes, all: [][]byte{[]byte("<noscript"), []byte("javascript")}},
	{kind: blockScript, maxBytes: shellMaxBytes, all: [][]byte{[]byte(`http-equiv="refresh"`)}},
}

// classifyBlock reports which protection, if any, kept a fetch from
// returning the posting itself.
func classifyBlock(status int, header http.Header, body []byte) blockKind {
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		for _, h := range wafHeaders {
			if header.Get(h) != "" {
				return blockChallenge
			}
		}
		if header.Get("Server") == "cloudflare" {
			return blockChallenge
		}
	}

	lower := bytes.ToLower(body)
	for _, r := range bodyRules {
		if r.maxBytes > 0 && len(body) >= r.maxBytes {
			continue
		}
		if containsAll(lower, r.all) {
			return r.kind
		}
	}
	return notBlocked
}

func containsAll(body []byte, markers [][]byte) bool {
	for _, m := range markers {
		if !bytes.Contains(body, m) {
			return false
		}
	}
	return true
}
