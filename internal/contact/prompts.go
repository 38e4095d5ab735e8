package contact

import (
	"fmt"
	"strings"

	"github.com/sells-group/posting-cli/internal/model"
)

const systemPrompt = "You verify academic contact details from web pages. " +
	"Answer only with the JSON object requested, judged strictly from the material provided."

func selectPrompt(results []model.SearchResult, name string) string {
	var list strings.Builder
	for i, r := range results {
		if i == maxSelectCandidates {
			break
		}
		fmt.Fprintf(&list, "%d. %s\n   URL: %s\n   Snippet: %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return fmt.Sprintf(`Please analyze the following search results and select the web pages most likely to contain detailed information about contact person "%s".

Search Results:
%s
Rank by relevance and select the 1-3 most valuable pages for in-depth analysis. Prioritize:
1. University or institution staff pages
2. Personal homepages
3. Google Scholar, ResearchGate and other academic profiles

Return JSON:
{
    "selected_urls": ["url1", "url2", "url3"],
    "reasoning": "why these pages"
}`, name, list.String())
}

func analyzePrompt(content, name string) string {
	return fmt.Sprintf(`Please analyze the following web page content and extract information about contact person "%s".

Web Page Content:
%s

Extract:
1. Degree: does this person hold a doctorate (PhD/Ph.D.) or a professor position?
2. Email: any email address belonging to this person
3. Title: Professor, Dr., Mr., Ms., etc.

Return JSON:
{
    "has_doctorate": true/false,
    "title_prefix": "Dr./Mr./Ms.",
    "email_address": "found email address or null",
    "gender": "male/female/unknown",
    "confidence": "high/medium/low",
    "evidence": "specific evidence supporting the judgment"
}

Notes:
- has_doctorate is true for a confirmed PhD OR any professor rank (Assistant, Associate, Full).
- When uncertain, prefer the conservative title (Mr./Ms.).
- Infer gender from pronouns (he/his/him vs she/her) or other context; otherwise "unknown".
- Use only information on this page about this person. The email must be a valid address.`, name, content)
}
