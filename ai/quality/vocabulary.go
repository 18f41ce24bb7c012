package quality

// stopWords are excluded from query content words (FR/EN/ES).
var stopWords = toSet(
	// French
	"le", "la", "les", "un", "une", "des", "de", "du", "et", "est", "je", "tu", "il", "nous",
	"vous", "que", "qui", "dans", "pour", "avec", "sur", "par", "pas", "quel", "quels", "quelle",
	"quelles", "sont", "votre", "notre", "vos", "nos", "comment", "avez", "avoir", "être", "cette",
	"cela", "ceci", "mais", "plus", "tout", "tous", "très", "bien", "aussi", "faire", "peut",
	"pouvez", "puis", "est-ce", "chez", "leur", "leurs",
	// English
	"the", "is", "a", "an", "and", "or", "in", "on", "at", "to", "for", "of", "it", "my", "me",
	"we", "you", "what", "which", "where", "who", "your", "our", "their", "this", "that",
	"these", "those", "with", "from", "have", "does", "could", "would", "should", "will",
	"about", "there", "they", "them", "please", "much", "many", "some",
	// Spanish
	"cual", "cuál", "cuáles", "como", "cómo", "para", "sobre", "este", "esta", "estos",
	"tienen", "usted", "ustedes", "quiero", "puede", "pueden", "donde", "dónde",
)

// synonymGroups are vocabulary families treated as equivalent when testing
// whether an answer covers a query word.
var synonymGroups = map[string][]string{
	"pricing": {
		"prix", "tarif", "tarifs", "coût", "cout", "price", "prices", "pricing", "cost", "costs",
		"precio", "precios", "costo", "euros", "budget", "presupuesto", "cher", "cheap",
		"expensive", "fee", "fees", "frais",
	},
	"product": {
		"produit", "produits", "service", "services", "offre", "offres", "solution", "product",
		"products", "offer", "producto", "servicio", "plan", "plans", "formule", "widget",
		"assistant", "agent",
	},
	"project": {
		"projet", "besoin", "besoins", "project", "need", "needs", "proyecto", "necesidad",
		"objectif", "goal", "goals", "objetivo",
	},
	"problem": {
		"problème", "probleme", "bug", "erreur", "panne", "problem", "issue", "error", "broken",
		"problema", "fallo", "marche", "fonctionne", "working",
	},
	"recommendation": {
		"recommander", "recommande", "conseiller", "conseil", "suggérer", "recommend",
		"suggest", "advise", "recomendar", "sugerir", "meilleur", "best", "ideal", "choisir",
		"choose",
	},
	"timeline": {
		"délai", "delai", "date", "quand", "semaine", "mois", "deadline", "timeline", "when",
		"week", "weeks", "month", "plazo", "fecha", "cuando", "semana", "jours", "days",
	},
	"installation": {
		"installer", "installation", "intégrer", "intégration", "configurer", "install",
		"setup", "configure", "integrate", "integration", "instalar", "configurar", "script",
		"snippet", "code",
	},
	"subscription": {
		"abonnement", "souscrire", "inscription", "subscribe", "subscription", "signup",
		"suscripción", "suscribir", "mensuel", "monthly", "mensual", "annual", "annuel",
	},
}

// injectionMarkers disable the off-topic check: answering a hijack attempt
// off-topic is the desired outcome.
var injectionMarkers = []string{
	"ignore previous instructions",
	"ignore all previous",
	"system prompt",
	"forget everything",
	"new instructions",
	"tu es maintenant",
	"votre nouveau rôle",
	"act as",
	"speak as",
}

// defaultKnownPrices are published plan prices that never count as invented.
var defaultKnownPrices = []string{"49", "99", "149", "199"}

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
