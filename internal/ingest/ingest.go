// Package ingest normalizes raw chat text into speakable form: dictionary
// substitution, URL collapsing, and attachment placeholders.
package ingest

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yomilabs/yomi-core/internal/config"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// Processor rewrites message text according to the tenant dictionary and the
// configured placeholders. Stateless; safe for concurrent use.
type Processor struct {
	urlPlaceholder        string
	attachmentPlaceholder string
}

func NewProcessor(cfg config.IngestConfig) *Processor {
	return &Processor{
		urlPlaceholder:        cfg.URLPlaceholder,
		attachmentPlaceholder: cfg.AttachmentPlaceholder,
	}
}

// Process rewrites text for readout. Dictionary words are replaced by their
// readings with longer words matched first, so a word that contains another
// dictionary word is not partially rewritten. URLs collapse to the URL
// placeholder, and one attachment placeholder is appended per attachment.
// Whitespace-only results come back empty so callers can drop them.
func (p *Processor) Process(text string, dictionary map[string]string, attachments int) string {
	out := p.applyDictionary(text, dictionary)
	out = urlPattern.ReplaceAllString(out, p.urlPlaceholder)

	if strings.TrimSpace(out) == "" {
		out = ""
	}
	for i := 0; i < attachments; i++ {
		if out != "" {
			out += " "
		}
		out += p.attachmentPlaceholder
	}
	return out
}

func (p *Processor) applyDictionary(text string, dictionary map[string]string) string {
	if len(dictionary) == 0 {
		return text
	}
	words := make([]string, 0, len(dictionary))
	for w := range dictionary {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	for _, w := range words {
		text = strings.ReplaceAll(text, w, dictionary[w])
	}
	return text
}
