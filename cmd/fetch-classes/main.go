// Command fetch-classes downloads a web page listing dataset classes and
// writes a class names file, one name per line, ready for the generator's
// --classes flag.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

func main() {
	var (
		pageURL = flag.String("url", "", "Page to scrape (required)")
		outPath = flag.String("out", "", "Output class file (required)")
		tag     = flag.String("selector-tag", "li", "Element tag holding one class name each")
		limit   = flag.Int("limit", 0, "Keep at most this many classes (0 = all)")
	)
	flag.Parse()

	if *pageURL == "" {
		log.Fatal("--url required")
	}
	if *outPath == "" {
		log.Fatal("--out required")
	}

	resp, err := http.Get(*pageURL)
	if err != nil {
		log.Fatal("Failed to fetch page:", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		log.Fatalf("Failed to fetch page: HTTP %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		log.Fatal("Failed to parse page:", err)
	}

	classes := extractClasses(doc, *tag)
	if *limit > 0 && len(classes) > *limit {
		classes = classes[:*limit]
	}
	if len(classes) == 0 {
		log.Fatalf("No %s elements with usable text found", *tag)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# classes scraped from %s\n", *pageURL)
	for _, class := range classes {
		b.WriteString(class)
		b.WriteString("\n")
	}
	if err := os.WriteFile(*outPath, []byte(b.String()), 0644); err != nil {
		log.Fatal("Failed to write class file:", err)
	}

	log.Printf("✓ Wrote %d classes to %s", len(classes), *outPath)
}

// extractClasses walks the parsed page and returns the cleaned text of
// every element with the given tag, case-insensitively deduplicated in
// document order.
func extractClasses(root *html.Node, tag string) []string {
	var classes []string
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			if class := cleanClassName(nodeText(n)); class != "" {
				if key := strings.ToLower(class); !seen[key] {
					seen[key] = true
					classes = append(classes, class)
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return classes
}

// nodeText concatenates all text beneath n.
func nodeText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)

	return buf.String()
}

// cleanClassName normalizes scraped text into a class name: list markers
// stripped, whitespace collapsed, lowercased. Text without any letter is
// discarded.
func cleanClassName(s string) string {
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.IsDigit(r) || unicode.IsSpace(r) || r == '.' || r == ')' || r == '-' || r == '*' || r == '•'
	})
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ToLower(s)

	for _, r := range s {
		if unicode.IsLetter(r) {
			return s
		}
	}
	return ""
}
