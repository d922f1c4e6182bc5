package signals

import (
	"strings"

	"github.com/y0ug/hashguard/internal/database/models"
)

// DefaultCautionWords mark a narrative that advises against visiting a URL.
var DefaultCautionWords = []string{
	"suspicious", "dangerous", "caution", "avoid", "phishing", "scam", "fraud", "malicious",
	"suspeito", "perigoso", "cuidado", "cautela", "evitar", "fraude",
}

// OpinionSignal turns a narrative into a signal when it contains caution words.
// ok is false when the narrative is empty or contains none of them.
func OpinionSignal(matcher *KeywordMatcher, narrative string) (result models.SignalResult, ok bool) {
	if matcher == nil || narrative == "" {
		return models.SignalResult{}, false
	}
	hits := matcher.Find(narrative)
	if len(hits) == 0 {
		return models.SignalResult{}, false
	}
	return checked(models.ProviderOpinion, models.SignalSuspicious, "narrative cautions: "+strings.Join(hits, ","), 0.4), true
}
