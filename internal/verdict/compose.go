package verdict

import "github.com/y0ug/hashguard/internal/database/models"

// Compose folds signal results into one verdict. It is order independent.
//
//	any malicious                                   -> malicious
//	otherwise any suspicious                        -> suspicious
//	otherwise at least one non-advisory clean check -> safe
//	otherwise                                       -> suspicious
//
// Advisory signals can raise the verdict but never make a URL safe.
// With strict set, safe additionally requires every signal to have been checked.
func Compose(signals []models.SignalResult, strict bool) models.Verdict {
	var evidence, malicious, suspicious, unchecked int
	for _, s := range signals {
		if !s.Checked {
			unchecked++
			continue
		}
		if !s.Advisory {
			evidence++
		}
		switch s.Verdict {
		case models.SignalMalicious:
			malicious++
		case models.SignalSuspicious:
			suspicious++
		case models.SignalClean:
		default:
			// An unknown verdict is not evidence of safety.
			suspicious++
		}
	}

	switch {
	case malicious > 0:
		return models.VerdictMalicious
	case suspicious > 0:
		return models.VerdictSuspicious
	case evidence == 0:
		return models.VerdictSuspicious
	case strict && unchecked > 0:
		return models.VerdictSuspicious
	}
	return models.VerdictSafe
}
