package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/puente-salud/puente/internal/interp"
)

// Detector classifies utterance text into zero or more intents using
// deterministic, locale-aware phrase matching. It is stateless and safe for
// concurrent use. Rules are not mutually exclusive: one utterance can raise
// both a lab_order and a follow_up.
type Detector struct {
	now func() time.Time
}

func NewDetector() *Detector {
	return &Detector{now: time.Now}
}

var repeatPhrases = []string{
	"repeat that",
	"say that again",
	"could you repeat",
	"repita eso",
	"repita por favor",
	"dilo otra vez",
}

var followUpPhrases = []string{
	"follow up",
	"follow-up",
	"next appointment",
	"schedule another",
	"come back in",
	"see you in",
	"see you again",
	"próxima cita",
	"cita de seguimiento",
	"volver a ver",
}

var labOrderPhrases = []string{
	"lab",
	"test",
	"blood work",
	"análisis",
	"laboratorio",
	"sangre",
	"examen",
}

var timePeriodPattern = regexp.MustCompile(`(\d+)\s*(day|week|month|año|día|semana|mes)`)

var spanishPlurals = map[string]string{
	"año":    "años",
	"día":    "días",
	"semana": "semanas",
	"mes":    "meses",
}

// Detect returns the intents raised by text, in rule order
// (repeat, follow_up, lab_order). Text matching no rule yields nil.
func (d *Detector) Detect(text string) []interp.Intent {
	lower := strings.ToLower(text)
	detectedAt := d.now().UTC()

	var intents []interp.Intent

	if matchesAny(lower, repeatPhrases) {
		intents = append(intents, interp.Intent{
			Type:       interp.IntentRepeat,
			Value:      true,
			DetectedAt: detectedAt,
		})
	}

	if matchesAny(lower, followUpPhrases) {
		var value any = true
		if period, ok := extractTimePeriod(lower); ok {
			value = period
		}
		intents = append(intents, interp.Intent{
			Type:       interp.IntentFollowUp,
			Value:      value,
			DetectedAt: detectedAt,
		})
	}

	if matchesAny(lower, labOrderPhrases) {
		intents = append(intents, interp.Intent{
			Type:       interp.IntentLabOrder,
			Value:      true,
			DetectedAt: detectedAt,
		})
	}

	return intents
}

func matchesAny(lower string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// extractTimePeriod pulls a "<number> <unit>" expression out of lowered text
// and normalizes it, pluralizing the unit when the count exceeds one.
func extractTimePeriod(lower string) (string, bool) {
	match := timePeriodPattern.FindStringSubmatch(lower)
	if match == nil {
		return "", false
	}

	n, err := strconv.Atoi(match[1])
	if err != nil {
		return "", false
	}

	unit := match[2]
	if n > 1 {
		if plural, ok := spanishPlurals[unit]; ok {
			unit = plural
		} else {
			unit += "s"
		}
	}

	return fmt.Sprintf("%d %s", n, unit), true
}
