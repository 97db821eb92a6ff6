package report

import "strings"

// realizedTokens is the "réalisé"/"fait" family inherited from the
// historical dataset, matched after lowercasing and diacritic folding.
var realizedTokens = []string{
	"realise", // réalisé, réalisée, réalisés
	"fait",    // fait, faite, faits
	"effectue",
	"termine",
}

// IsRealized reports whether a planification's free-text outcome
// indicates completion.
//
// KNOWN LIMITATION: this is a substring heuristic over free text,
// preserved for backward compatibility with historical planification
// rows. "non réalisé" still matches and is therefore misclassified as
// realized. The durable fix is an explicit outcome enum at data entry;
// until the schema carries one, this behavior must not change silently.
func IsRealized(resultatJournee string) bool {
	folded := foldDiacritics(strings.ToLower(strings.TrimSpace(resultatJournee)))
	if folded == "" {
		return false
	}
	for _, token := range realizedTokens {
		if strings.Contains(folded, token) {
			return true
		}
	}
	return false
}

// foldDiacritics maps the accented characters that actually occur in the
// dataset's French outcome strings onto their ASCII base letters.
func foldDiacritics(s string) string {
	replacer := strings.NewReplacer(
		"é", "e", "è", "e", "ê", "e", "ë", "e",
		"à", "a", "â", "a",
		"î", "i", "ï", "i",
		"ô", "o",
		"ù", "u", "û", "u",
		"ç", "c",
	)
	return replacer.Replace(s)
}
