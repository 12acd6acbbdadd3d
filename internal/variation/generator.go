// Package variation rewrites a campaign template into several semantically
// equivalent variants so consecutive sends don't share an exact byte pattern.
// Variation is best effort: any internal failure degrades to the unmodified
// template, never to a lost delivery.
package variation

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// NumVariants is the size of the variant set generated once per campaign.
const NumVariants = 5

var (
	urlRx   = regexp.MustCompile(`https?://[^\s]+`)
	phoneRx = regexp.MustCompile(`\+?\d{8,15}`)
	codeRx  = regexp.MustCompile(`\b[A-Z0-9]{4,}\b`)
	ctaRx   = regexp.MustCompile(`(?i)\b(digite|responda|mande|envie)\s+([A-Z0-9]{2,})`)

	sentenceRx = regexp.MustCompile(`[^.!?\n]+[.!?]*\s*`)
	bangRx     = regexp.MustCompile(`!+`)
	ellipsisRx = regexp.MustCompile(`\.{3}`)
)

type synonymEntry struct {
	rx   *regexp.Regexp
	alts []string
}

var synonymEntries []synonymEntry

var emojiCategory = map[string][]string{}

func init() {
	for key, alts := range synonyms {
		// Explicit delimiter classes instead of \b: dictionary entries end in
		// accented runes that ASCII word boundaries cannot see.
		rx := regexp.MustCompile(`(?i)(^|[\s.,;:!?()])` + regexp.QuoteMeta(key) + `($|[\s.,;:!?()])`)
		synonymEntries = append(synonymEntries, synonymEntry{rx: rx, alts: alts})
	}
	for _, category := range emojiCategories {
		for _, e := range category {
			emojiCategory[e] = category
		}
	}
}

// profile is one slot's technique combination. The five profiles differ
// structurally so variant diversity does not depend on random draws.
type profile struct {
	greeting    bool
	cta         bool
	synonymProb float64
	emoji       bool
	shuffle     bool
	punctuation int // 0 leave, 1 soften, 2 intensify
}

var profiles = [NumVariants]profile{
	{greeting: true},
	{synonymProb: 0.6, punctuation: 2},
	{synonymProb: 0.4, emoji: true, cta: true},
	{shuffle: true, synonymProb: 0.3, punctuation: 1},
	{greeting: true, cta: true, synonymProb: 0.8, emoji: true, shuffle: true, punctuation: 2},
}

// Generator produces variant sets. It has no side effects; output is a pure
// function of the template and the internal randomness source.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a time-seeded generator.
func NewGenerator() *Generator {
	return NewGeneratorWithSeed(time.Now().UnixNano())
}

// NewGeneratorWithSeed returns a deterministic generator, used by tests.
func NewGeneratorWithSeed(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Generate returns an ordered list of NumVariants variants of template.
// URLs, raw phone numbers and alphanumeric codes survive byte for byte.
func (g *Generator) Generate(template string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, NumVariants)
	for i, p := range profiles {
		out[i] = g.applySafe(template, p)
	}
	return out
}

// applySafe degrades to the unmodified template if a technique panics.
func (g *Generator) applySafe(template string, p profile) (result string) {
	defer func() {
		if recover() != nil {
			result = template
		}
	}()
	return g.apply(template, p)
}

func (g *Generator) apply(template string, p profile) string {
	text := template

	// Call-to-action rewriting runs before token protection because the
	// keyword it preserves is itself a protected token.
	if p.cta {
		text = g.rewriteCTA(text)
	}

	text, protected := protect(text)

	if p.greeting {
		text = g.swapGreeting(text)
	}
	if p.synonymProb > 0 {
		text = g.substituteSynonyms(text, p.synonymProb)
	}
	if p.shuffle {
		text = g.shuffleSentences(text)
	}
	if p.emoji {
		text = g.substituteEmojis(text)
	}
	switch p.punctuation {
	case 1:
		text = softenPunctuation(text)
	case 2:
		text = g.intensifyPunctuation(text)
	}

	return restore(text, protected)
}

// protect replaces URLs, phone numbers and uppercase codes with opaque
// placeholders so no later transformation can touch them.
func protect(text string) (string, []string) {
	var protected []string
	sub := func(match string) string {
		protected = append(protected, match)
		return fmt.Sprintf("\x00%d\x00", len(protected)-1)
	}
	text = urlRx.ReplaceAllStringFunc(text, sub)
	text = phoneRx.ReplaceAllStringFunc(text, sub)
	text = codeRx.ReplaceAllStringFunc(text, sub)
	return text, protected
}

func restore(text string, protected []string) string {
	for i, original := range protected {
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00%d\x00", i), original)
	}
	return text
}

func (g *Generator) swapGreeting(text string) string {
	trimmed := strings.TrimLeft(text, " ")
	lower := strings.ToLower(trimmed)
	for _, opener := range greetingOpeners {
		if !strings.HasPrefix(lower, opener) {
			continue
		}
		// The opener must end at a word boundary; "oi" is not a greeting
		// inside "Oito".
		if rest := trimmed[len(opener):]; rest != "" {
			if r, _ := utf8.DecodeRuneInString(rest); unicode.IsLetter(r) {
				continue
			}
		}
		replacement := greetings[g.rng.Intn(len(greetings))]
		if strings.EqualFold(replacement, opener) {
			replacement = greetings[(g.rng.Intn(len(greetings)-1)+1)%len(greetings)]
		}
		lead := text[:len(text)-len(trimmed)]
		return lead + replacement + trimmed[len(opener):]
	}
	return text
}

func (g *Generator) substituteSynonyms(text string, prob float64) string {
	for _, entry := range synonymEntries {
		if g.rng.Float64() >= prob {
			continue
		}
		alt := entry.alts[g.rng.Intn(len(entry.alts))]
		text = entry.rx.ReplaceAllString(text, "${1}"+alt+"${2}")
	}
	return text
}

func (g *Generator) shuffleSentences(text string) string {
	sentences := sentenceRx.FindAllString(text, -1)
	if len(sentences) < 3 {
		return text
	}
	// The opening sentence carries the greeting, keep it anchored.
	rest := sentences[1:]
	g.rng.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
	return strings.Join(sentences, "")
}

func (g *Generator) substituteEmojis(text string) string {
	for emoji, category := range emojiCategory {
		if !strings.Contains(text, emoji) {
			continue
		}
		alt := category[g.rng.Intn(len(category))]
		text = strings.ReplaceAll(text, emoji, alt)
	}
	return text
}

func (g *Generator) rewriteCTA(text string) string {
	return ctaRx.ReplaceAllStringFunc(text, func(match string) string {
		groups := ctaRx.FindStringSubmatch(match)
		verb := ctaVerbs[g.rng.Intn(len(ctaVerbs))]
		return verb + " " + groups[2]
	})
}

func (g *Generator) intensifyPunctuation(text string) string {
	marks := strings.Repeat("!", 1+g.rng.Intn(3))
	return bangRx.ReplaceAllString(text, marks)
}

func softenPunctuation(text string) string {
	text = bangRx.ReplaceAllString(text, ".")
	return ellipsisRx.ReplaceAllString(text, ".")
}
