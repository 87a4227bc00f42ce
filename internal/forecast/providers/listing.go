package providers

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

type nodeFunc func(node *html.Node)

// walkNodeTree walks a HTML parse tree depth first calling nodeFn for each node.
func walkNodeTree(root *html.Node, nodeFn nodeFunc) {
	nodeFn(root)
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		walkNodeTree(c, nodeFn)
	}
}

// listHrefs fetches a directory listing and returns the href of every
// anchor in document order.
func (c *Client) listHrefs(ctx context.Context, pageURL string) ([]string, error) {
	resp, err := c.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", pageURL, err)
	}

	var hrefs []string
	walkNodeTree(doc, func(node *html.Node) {
		if node.Type != html.ElementNode || node.Data != "a" {
			return
		}
		for _, a := range node.Attr {
			if a.Key == "href" {
				hrefs = append(hrefs, a.Val)
			}
		}
	})
	return hrefs, nil
}

// matchGroups returns the first submatch of re in every href, sorted and
// de-duplicated.
func matchGroups(hrefs []string, re *regexp.Regexp) []string {
	var out []string
	for _, h := range hrefs {
		if m := re.FindStringSubmatch(h); m != nil {
			out = append(out, m[1])
		}
	}
	return sortedUnique(out)
}

func sortedUnique(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

// joinURL joins a directory URL and a relative reference. Absolute hrefs
// are returned unchanged.
func joinURL(dir, ref string) string {
	base, err := url.Parse(ensureSlash(dir))
	if err != nil {
		return ensureSlash(dir) + ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ensureSlash(dir) + ref
	}
	return base.ResolveReference(rel).String()
}

func ensureSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
