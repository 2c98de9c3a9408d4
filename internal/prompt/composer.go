// Package prompt turns a note sequence plus the user's creative choices into
// the single natural-language prompt sent to the generation model.
package prompt

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/melodia-app/melodia-api/internal/melody"
)

// creativeSpices is the fixed phrase set one flourish is drawn from per
// prompt. The draw is the only non-deterministic part of composition, so
// identical requests still produce varied generations.
var creativeSpices = []string{
	"with a slightly unexpected chord progression.",
	"in a lo-fi style.",
	"featuring a surprising key change.",
}

// Request carries the user-supplied creative choices for one composition.
type Request struct {
	Genre       string
	Mood        string
	Instruments []string // empty set delegates instrument choice to the model
	CustomText  string   // optional free-text directive, appended verbatim
}

// Composer is a deterministic rule engine over melody analysis and user
// choices, except for the single injected random flourish draw.
type Composer struct {
	mu  sync.Mutex // one composer serves concurrent requests; rand.Rand is not goroutine-safe
	rng *rand.Rand
}

// NewComposer creates a composer drawing its creative flourish from rng.
func NewComposer(rng *rand.Rand) *Composer {
	return &Composer{rng: rng}
}

// Compose builds the generation prompt. It never fails: when the note
// sequence is empty there is nothing to analyze and the prompt degrades to
// a minimal genre/mood template.
func (c *Composer) Compose(notes melody.NoteSequence, req Request) string {
	if len(notes) == 0 {
		return fmt.Sprintf("A %s %s song.", req.Mood, req.Genre)
	}

	analysis := melody.Analyze(notes)

	var b strings.Builder
	b.WriteString(c.baseInstruction(req))
	b.WriteString(fmt.Sprintf(
		" The music should be based on a user's humming, with these core characteristics:"+
			" Key: approximately %s. Tempo: around %d BPM. Rhythm: %s. Melody Contour: %s.",
		analysis.Key, analysis.Tempo, analysis.RhythmPhrase(), analysis.ContourPhrase()))

	if req.CustomText != "" {
		b.WriteString(fmt.Sprintf(" Additionally, please follow this special user request: '%s'", req.CustomText))
	}

	b.WriteString(" For a creative touch, please interpret this ")
	b.WriteString(c.drawSpice())

	return b.String()
}

func (c *Composer) drawSpice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return creativeSpices[c.rng.Intn(len(creativeSpices))]
}

// baseInstruction picks the framing and the instrument instruction:
// exactly one instrument is a solo piece with a hard exclusivity clause,
// several instruments an ensemble limited to that list, and none at all an
// ensemble whose orchestration is delegated to the generation model.
func (c *Composer) baseInstruction(req Request) string {
	switch len(req.Instruments) {
	case 0:
		return fmt.Sprintf(
			"Generate a professional, high-quality instrumental music piece in a %s style with a %s mood."+
				" CRITICAL INSTRUCTION: Please select and use instruments that are most appropriate"+
				" for the **%s** genre and **%s** mood.",
			req.Genre, req.Mood, req.Genre, req.Mood)
	case 1:
		return fmt.Sprintf(
			"Generate a high-quality music piece for a SOLO %s. The style should be a %s with a %s mood."+
				" CRITICAL INSTRUCTION: Use ONLY the %s and no other instruments.",
			req.Instruments[0], req.Genre, req.Mood, req.Instruments[0])
	default:
		list := strings.Join(req.Instruments, ", ")
		return fmt.Sprintf(
			"Generate a professional, high-quality instrumental music piece in a %s style with a %s mood."+
				" CRITICAL INSTRUCTION: Use ONLY the following instruments: %s.",
			req.Genre, req.Mood, list)
	}
}
