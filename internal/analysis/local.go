package analysis

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	// shortInput is the length below which the transcript is its own summary.
	shortInput = 200
	// maxChunkChars bounds the text handed to one summarization pass.
	maxChunkChars = 2000
	// maxSummaryChars triggers a second condensing pass over the combined
	// chunk summaries.
	maxSummaryChars = 700
	// sentencesPerChunk is how many top-scored sentences survive per chunk.
	sentencesPerChunk = 2
)

// Local is the always-available analyzer. Summarization is extractive
// (frequency-scored sentence selection over chunks covering the whole
// input), sentiment is lexicon-based, and action items come from
// ExtractActionItems. All of it is deterministic.
type Local struct {
	maxActionItems int
}

// NewLocal creates a Local analyzer. maxActionItems <= 0 selects the default.
func NewLocal(maxActionItems int) *Local {
	if maxActionItems <= 0 {
		maxActionItems = DefaultMaxActionItems
	}
	return &Local{maxActionItems: maxActionItems}
}

func (l *Local) Analyze(ctx context.Context, transcript string) (Result, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Result{}, fmt.Errorf("empty transcript")
	}

	summary, err := l.summarize(ctx, transcript)
	if err != nil {
		return Result{}, err
	}

	label, score := scoreSentiment(transcript)

	return Result{
		Summary:        summary,
		Sentiment:      label,
		SentimentScore: score,
		ActionItems:    ExtractActionItems(transcript, l.maxActionItems),
	}, nil
}

// summarize chunks the transcript, extracts the highest-signal sentences
// from every chunk in parallel, and condenses once more if the combined
// result is still long. Every chunk contributes, so the summary covers the
// whole input rather than a prefix.
func (l *Local) summarize(ctx context.Context, text string) (string, error) {
	if len(text) <= shortInput {
		return text, nil
	}

	chunks := chunkBySentence(text, maxChunkChars)

	summaries := make([]string, len(chunks))
	g, _ := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			summaries[i] = extractSummary(chunk, sentencesPerChunk)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	combined := strings.Join(summaries, " ")
	if len(combined) > maxSummaryChars {
		combined = extractSummary(combined, 4)
	}
	return combined, nil
}

// chunkBySentence groups sentences into chunks no longer than maxChars,
// except that a single oversized sentence forms its own chunk.
func chunkBySentence(text string, maxChars int) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, s := range sentences {
		if current.Len() > 0 && current.Len()+len(s)+2 > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(s)
		if !strings.HasSuffix(s, ".") {
			current.WriteString(".")
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// extractSummary picks the n highest-scoring sentences, preserving their
// original order. Sentence score is the mean frequency of its non-stopword
// terms, so sentences dense in the chunk's dominant vocabulary win.
func extractSummary(text string, n int) string {
	sentences := splitSentences(text)
	if len(sentences) <= n {
		return strings.TrimSpace(text)
	}

	freq := make(map[string]int)
	for _, s := range sentences {
		for _, w := range tokenize(s) {
			freq[w]++
		}
	}

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		words := tokenize(s)
		if len(words) == 0 {
			ranked[i] = scored{index: i}
			continue
		}
		total := 0
		for _, w := range words {
			total += freq[w]
		}
		ranked[i] = scored{index: i, score: float64(total) / float64(len(words))}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	top := ranked[:n]
	sort.Slice(top, func(i, j int) bool { return top[i].index < top[j].index })

	parts := make([]string, len(top))
	for i, s := range top {
		parts[i] = strings.TrimRight(sentences[s.index], ".!?") + "."
	}
	return strings.Join(parts, " ")
}

var wordPattern = regexp.MustCompile(`[a-zA-Z']+`)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"if": true, "then": true, "so": true, "of": true, "to": true, "in": true,
	"on": true, "at": true, "for": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"it": true, "its": true, "this": true, "that": true, "these": true,
	"those": true, "i": true, "we": true, "you": true, "he": true, "she": true,
	"they": true, "them": true, "our": true, "your": true, "my": true,
	"as": true, "not": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "will": true, "would": true,
	"can": true, "could": true, "just": true, "about": true, "there": true,
}

func tokenize(s string) []string {
	var words []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
		if !stopwords[w] {
			words = append(words, w)
		}
	}
	return words
}

var positiveWords = map[string]bool{
	"good": true, "great": true, "excellent": true, "happy": true,
	"progress": true, "success": true, "successful": true, "win": true,
	"agree": true, "agreed": true, "perfect": true, "glad": true,
	"excited": true, "exciting": true, "improvement": true, "improved": true,
	"well": true, "better": true, "best": true, "love": true, "thanks": true,
	"thank": true, "awesome": true, "fantastic": true, "solved": true,
	"resolved": true, "done": true, "achieved": true, "ahead": true,
}

var negativeWords = map[string]bool{
	"bad": true, "problem": true, "problems": true, "issue": true,
	"issues": true, "fail": true, "failed": true, "failure": true,
	"blocked": true, "blocker": true, "delay": true, "delayed": true,
	"concern": true, "concerned": true, "worried": true, "worry": true,
	"risk": true, "risky": true, "wrong": true, "broken": true,
	"difficult": true, "hard": true, "behind": true, "missed": true,
	"missing": true, "unhappy": true, "angry": true, "frustrated": true,
	"frustrating": true, "bug": true, "bugs": true, "critical": true,
}

// scoreSentiment counts lexicon hits over the transcript. With no signal
// at all the label is NEUTRAL at 0.5 confidence; otherwise the dominant
// polarity wins with confidence equal to its share of all hits.
func scoreSentiment(text string) (string, float64) {
	pos, neg := 0, 0
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if positiveWords[w] {
			pos++
		} else if negativeWords[w] {
			neg++
		}
	}

	total := pos + neg
	if total == 0 {
		return SentimentNeutral, 0.5
	}

	posShare := float64(pos) / float64(total)
	switch {
	case posShare > 0.6:
		return SentimentPositive, posShare
	case posShare < 0.4:
		return SentimentNegative, 1 - posShare
	default:
		return SentimentNeutral, 1 - 2*absFloat(posShare-0.5)
	}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
