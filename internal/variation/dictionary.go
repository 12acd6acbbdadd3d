package variation

// Curated substitution dictionaries. Entries are grouped so a replacement
// always stays within its semantic category; campaigns are written in
// Brazilian Portuguese, matching the templates the system sends.

var synonyms = map[string][]string{
	// greetings
	"olá":      {"oi", "opa", "e aí"},
	"oi":       {"olá", "opa"},
	"bom dia":  {"bom dia pra você", "um ótimo dia"},
	"boa tarde": {"boa tarde pra você"},

	// verbs
	"aproveite":  {"garanta", "não perca", "confira"},
	"garanta":    {"aproveite", "assegure"},
	"confira":    {"veja", "conheça", "aproveite"},
	"compre":     {"adquira", "garanta"},
	"clique":     {"toque", "acesse"},

	// adjectives
	"incrível":    {"imperdível", "sensacional", "fantástica"},
	"imperdível":  {"incrível", "exclusiva"},
	"exclusiva":   {"especial", "única"},
	"especial":    {"exclusiva", "única"},
	"grátis":      {"gratuito", "sem custo"},

	// fixed expressions
	"promoção":        {"oferta", "condição especial"},
	"oferta":          {"promoção", "oportunidade"},
	"últimas unidades": {"estoque acabando", "últimas peças"},
	"somente hoje":    {"só hoje", "apenas hoje"},

	// connectors
	"e":       {"e também"},
	"também":  {"ainda"},
	"agora":   {"já", "agora mesmo"},
}

var emojiCategories = [][]string{
	{"🎉", "🎊", "🥳"},             // celebration
	{"🔥", "⚡", "✨"},             // fire / hype
	{"😀", "😃", "😄", "👍", "💪"}, // positive
	{"⚠️", "❗", "📢", "🚨"},       // warning / attention
	{"💰", "💵", "🤑", "💸"},       // money
}

var greetings = []string{
	"Olá", "Oi", "Opa", "E aí", "Tudo bem?",
}

// greetingOpeners are the words that mark a template as starting with a
// greeting, triggering greeting-phrase substitution.
var greetingOpeners = []string{
	"olá", "oi", "opa", "e aí", "bom dia", "boa tarde", "boa noite",
}

// ctaVerbs rewrite a "digite KEYWORD" call to action. The keyword itself is
// preserved verbatim; only the instruction verb changes.
var ctaVerbs = []string{
	"Digite", "Responda", "Mande", "Envie",
}
