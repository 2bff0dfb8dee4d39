package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FieldStrategy is one way of locating a field's value on a detail page.
// Each field owns an ordered list; the extractor applies them in order and
// takes the first non-empty result.
type FieldStrategy struct {
	Name    string
	Extract func(doc *goquery.Document) string
}

func selectorText(selector string) FieldStrategy {
	return FieldStrategy{
		Name: selector,
		Extract: func(doc *goquery.Document) string {
			return strings.TrimSpace(doc.Find(selector).First().Text())
		},
	}
}

func selectorAttr(selector, attr string) FieldStrategy {
	return FieldStrategy{
		Name: selector + "@" + attr,
		Extract: func(doc *goquery.Document) string {
			v, _ := doc.Find(selector).First().Attr(attr)
			return strings.TrimSpace(v)
		},
	}
}

// applyStrategies runs the list in order and returns the first hit. A field
// with no successful strategy stays empty; it never blocks extraction.
func applyStrategies(doc *goquery.Document, strategies []FieldStrategy) string {
	for _, s := range strategies {
		if v := s.Extract(doc); v != "" {
			return v
		}
	}
	return ""
}

// Layout generations observed on detail pages, newest first.
var titleStrategies = []FieldStrategy{
	selectorText("h1.postingtitle"),
	selectorText("span.postingtitletext"),
	selectorText("h1 span.titlestring"),
	selectorText("h2.postingtitle"),
	selectorText(".title h2"),
	selectorText("a.cl-app-anchor.text-only.posting-title span.label"),
	selectorText("span.label"),
	{Name: "page-title", Extract: titleFromPageTitle},
}

var priceStrategies = []FieldStrategy{
	selectorText("span.price"),
	selectorText(".price"),
	selectorText("span.priceinfo"),
	selectorText(".meta-line .priceinfo"),
}

var descriptionStrategies = []FieldStrategy{
	selectorText("#postingbody"),
	selectorText(".posting-body"),
	selectorText(".posting-description"),
	selectorText(".description"),
}

var locationStrategies = []FieldStrategy{
	selectorText(".postingtitletext .price + small"),
	selectorText(".postinginfos .location"),
	selectorText(".mapaddress"),
	selectorText(".meta-line .meta"),
}

var dateStrategies = []FieldStrategy{
	selectorAttr(".postinginfos time", "datetime"),
	selectorText(".postinginfos .date"),
	selectorText(".date"),
}

var gallerySelectors = []string{
	".gallery .swipe img",
	"#thumbs .thumb img",
	".gallery-image",
	".swipe-wrap img",
	".swipe-wrap div[data-index] img",
	".slide img",
	".carousel img",
}

var (
	listingIDPattern = regexp.MustCompile(`/(\d+)\.html`)
	phonePattern     = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	thumbPattern     = regexp.MustCompile(`_\d+x\d+\.jpg`)
	imgListPattern   = regexp.MustCompile(`(?s)var imgList = \[(.*?)\]`)
	imgIDPattern     = regexp.MustCompile(`"([^"]+)"`)
	rawImagePattern  = regexp.MustCompile(`https://images\.craigslist\.org/[^"']+\.jpg`)
	odometerPattern  = regexp.MustCompile(`(\d+k?\s*mi)`)
	citySlugPattern  = regexp.MustCompile(`^([a-zA-Z-]+)`)
	qrBoilerplate    = regexp.MustCompile(`QR Code Link to This Post\s*`)
)

// fullSizeSuffix is the canonical image dimension every thumbnail URL is
// rewritten to.
const fullSizeSuffix = "_600x450.jpg"

func titleFromPageTitle(doc *goquery.Document) string {
	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())
	if pageTitle == "" || !strings.Contains(strings.ToLower(pageTitle), "craigslist") {
		return ""
	}
	parts := strings.Split(pageTitle, " - ")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[0])
}

// photoURLs resolves the photo set with three fallbacks: the structural
// gallery, the image-id list embedded in page scripts, and a raw scan of
// the markup. All produce a deduplicated sequence of full-size URLs.
func photoURLs(doc *goquery.Document, rawHTML string) []string {
	if urls := photosFromGallery(doc); len(urls) > 0 {
		return urls
	}
	if urls := photosFromScript(doc); len(urls) > 0 {
		return urls
	}
	return photosFromRaw(rawHTML)
}

func photosFromGallery(doc *goquery.Document) []string {
	for _, selector := range gallerySelectors {
		var urls []string
		seen := make(map[string]bool)
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			src, ok := s.Attr("src")
			if !ok || src == "" {
				return
			}
			full := thumbPattern.ReplaceAllString(src, fullSizeSuffix)
			if !seen[full] {
				seen[full] = true
				urls = append(urls, full)
			}
		})
		if len(urls) > 0 {
			return urls
		}
	}
	return nil
}

func photosFromScript(doc *goquery.Document) []string {
	var urls []string
	seen := make(map[string]bool)
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		if !strings.Contains(text, "var imgList") {
			return
		}
		m := imgListPattern.FindStringSubmatch(text)
		if m == nil {
			return
		}
		for _, id := range imgIDPattern.FindAllStringSubmatch(m[1], -1) {
			u := fmt.Sprintf("https://images.craigslist.org/%s%s", id[1], fullSizeSuffix)
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	})
	return urls
}

func photosFromRaw(rawHTML string) []string {
	var urls []string
	seen := make(map[string]bool)
	for _, raw := range rawImagePattern.FindAllString(rawHTML, -1) {
		full := thumbPattern.ReplaceAllString(raw, fullSizeSuffix)
		if !seen[full] {
			seen[full] = true
			urls = append(urls, full)
		}
	}
	return urls
}

// listingIDFromURL pulls the numeric suffix of a canonical listing URL.
// Empty when the URL has no recognizable id.
func listingIDFromURL(u string) string {
	if m := listingIDPattern.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}

// cityFromURL derives the city from the slug segment that follows "/d/" in
// the listing path, title-cased with hyphens turned into spaces.
func cityFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(parsed.Path, "/")
	for i, seg := range segments {
		if seg == "d" && i+1 < len(segments) {
			m := citySlugPattern.FindStringSubmatch(segments[i+1])
			if m == nil {
				return ""
			}
			slug := strings.Trim(m[1], "-")
			return titleCase(strings.ReplaceAll(slug, "-", " "))
		}
	}
	return ""
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// attributes harvests the key/value spans of the attribute groups plus the
// odometer hint from the meta line.
func attributes(doc *goquery.Document) map[string]string {
	attrs := make(map[string]string)
	doc.Find(".attrgroup span").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		if key, value, found := strings.Cut(text, ":"); found {
			attrs[strings.TrimSpace(key)] = strings.TrimSpace(value)
		} else {
			attrs[text] = "true"
		}
	})
	if _, ok := attrs["odometer"]; !ok {
		meta := strings.TrimSpace(doc.Find(".meta-line .meta").First().Text())
		if m := odometerPattern.FindStringSubmatch(meta); m != nil {
			attrs["odometer"] = m[1]
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
