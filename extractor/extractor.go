package extractor

import (
	"iter"
	"net/url"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/cnosuke/pagemirror/document"
	"github.com/cnosuke/pagemirror/types"
)

// Tags whose URL-bearing attributes are localized.
var Tags = []string{"link", "script", "img", "audio", "video", "source", "track", "embed", "object", "iframe", "meta", "a"}

// Attrs checked on every tag in Tags, in this order.
var Attrs = []string{"href", "src", "data", "poster", "content"}

// SocialPreviewProperties are the meta properties whose content is a URL.
var SocialPreviewProperties = map[string]bool{
	"og:image":      true,
	"og:audio":      true,
	"og:video":      true,
	"twitter:image": true,
}

var skippedPrefixes = []string{"data:", "javascript:", "mailto:", "tel:", "about:", "blob:"}

var (
	tagSet    = make(map[string]bool, len(Tags))
	selection string
)

func init() {
	selectors := make([]string, 0, len(Tags)+4)
	for _, t := range Tags {
		tagSet[t] = true
		selectors = append(selectors, t)
	}
	selectors = append(selectors, "[style]", "style", "img[srcset]", "source[srcset]")
	selection = strings.Join(selectors, ", ")
}

// Extractor enumerates the references of a document relative to its base
// URL.
type Extractor struct {
	base  *url.URL
	hosts []string
}

// New creates an Extractor for a document served from base. Anchors are only
// followed when they resolve to base's host or one of siteHosts, which lets
// a page reached through a redirect keep links to the host it was requested
// from.
func New(base *url.URL, siteHosts ...string) *Extractor {
	hosts := append([]string{base.Host}, siteHosts...)
	return &Extractor{base: base, hosts: hosts}
}

// Extract collects every reference of doc in document order.
func (e *Extractor) Extract(doc *document.Document) []types.DocumentReference {
	return slices.Collect(e.References(doc))
}

// References yields the references of doc lazily, in document order. Per
// element: attributes, srcset candidates, inline style, then style text.
func (e *Extractor) References(doc *document.Document) iter.Seq[types.DocumentReference] {
	return func(yield func(types.DocumentReference) bool) {
		ids := doc.Select(selection)
		slices.Sort(ids)
		ids = slices.Compact(ids)

		for _, id := range ids {
			for _, ref := range e.element(doc, id) {
				if !yield(ref) {
					return
				}
			}
		}
	}
}

func (e *Extractor) element(doc *document.Document, id types.NodeID) []types.DocumentReference {
	tag := doc.Tag(id)
	var refs []types.DocumentReference

	if tagSet[tag] {
		for _, attr := range Attrs {
			raw, ok := doc.Attr(id, attr)
			if !ok {
				continue
			}
			if tag == "meta" && attr == "content" && !isSocialPreview(doc, id) {
				continue
			}
			abs, ok := e.Resolve(raw)
			if !ok {
				continue
			}
			if tag == "a" && attr == "href" && !e.sameHost(abs) {
				zap.S().Debugw("leaving cross-host link untouched", "url", abs)
				continue
			}
			refs = append(refs, types.DocumentReference{
				Node:  id,
				Kind:  types.KindAttr,
				Tag:   tag,
				Attr:  attr,
				Raw:   raw,
				Match: raw,
				URL:   abs.String(),
			})
		}
	}

	if tag == "img" || tag == "source" {
		if srcset, ok := doc.Attr(id, "srcset"); ok {
			refs = e.appendMatches(refs, id, tag, types.KindSrcset, "srcset", SrcsetCandidates(srcset))
		}
	}

	if style, ok := doc.Attr(id, "style"); ok {
		refs = e.appendMatches(refs, id, tag, types.KindStyleAttr, "style", ExtractURLs(style))
	}

	if tag == "style" {
		refs = e.appendMatches(refs, id, tag, types.KindStyleText, "", ExtractURLs(doc.Text(id)))
	}

	return refs
}

func (e *Extractor) appendMatches(
	refs []types.DocumentReference,
	id types.NodeID,
	tag string,
	kind types.ReferenceKind,
	attr string,
	matches []URLMatch,
) []types.DocumentReference {
	for _, m := range matches {
		abs, ok := e.Resolve(m.URL)
		if !ok {
			continue
		}
		refs = append(refs, types.DocumentReference{
			Node:   id,
			Kind:   kind,
			Tag:    tag,
			Attr:   attr,
			Raw:    m.URL,
			Match:  m.Match,
			Offset: m.Offset,
			URL:    abs.String(),
		})
	}
	return refs
}

// Resolve turns a URL as written in the document into an absolute http(s)
// URL without fragment. Values that do not name a fetchable resource are
// rejected.
func (e *Extractor) Resolve(raw string) (*url.URL, bool) {
	v := strings.TrimSpace(raw)
	if v == "" || strings.HasPrefix(v, "#") {
		return nil, false
	}
	lower := strings.ToLower(v)
	for _, p := range skippedPrefixes {
		if strings.HasPrefix(lower, p) {
			return nil, false
		}
	}

	u, err := url.Parse(v)
	if err != nil {
		zap.S().Debugw("skipping unparseable URL", "url", v, "error", err)
		return nil, false
	}
	abs := e.base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil, false
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs, true
}

func (e *Extractor) sameHost(u *url.URL) bool {
	for _, h := range e.hosts {
		if strings.EqualFold(u.Host, h) {
			return true
		}
	}
	return false
}

// isSocialPreview reports whether a meta element carries a preview media
// URL. Twitter cards use name= rather than property=.
func isSocialPreview(doc *document.Document, id types.NodeID) bool {
	if p, ok := doc.Attr(id, "property"); ok && SocialPreviewProperties[strings.TrimSpace(p)] {
		return true
	}
	if n, ok := doc.Attr(id, "name"); ok && SocialPreviewProperties[strings.TrimSpace(n)] {
		return true
	}
	return false
}
