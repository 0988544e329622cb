package tokenizer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
)

func TestTokenizeBasics(t *testing.T) {
	tokens := Tokenize("DNS Resolution Failure due to CoreDNS Pod Crash", corpus.FieldTitle)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
		assert.Equal(t, corpus.FieldTitle, tok.Field)
		assert.Equal(t, i, tok.Position)
	}
	assert.Equal(t, []string{"dns", "resolut", "failure", "due", "coredn", "pod", "crash"}, terms)
}

func TestTokenizeDropsShortAndStopWords(t *testing.T) {
	assert.Empty(t, Tokenize("to", corpus.FieldSummary))
	assert.Empty(t, Tokenize("a I x the and", corpus.FieldSummary))
	assert.Equal(t, []string{"disk", "full"}, Terms("The disk is full"))
	assert.True(t, IsStopWord("to"))
	assert.False(t, IsStopWord("dns"))
}

func TestTokenizeEmptyAndMalformed(t *testing.T) {
	assert.Empty(t, Tokenize("", corpus.FieldTitle))
	assert.Empty(t, Tokenize("   \t\n", corpus.FieldTitle))
	assert.Empty(t, Tokenize("!!! --- ???", corpus.FieldTitle))
	assert.Empty(t, Tokenize(string([]byte{0xff, 0xfe}), corpus.FieldTitle))
}

func TestTokenizeSplitsOnPunctuation(t *testing.T) {
	assert.Equal(t, []string{"k8s", "v1", "22", "gke"}, Terms("K8s v1.22, GKE"))
	assert.Equal(t, []string{"kube", "proxy"}, Terms("kube-proxy"))
}

func TestTokenizeUnicode(t *testing.T) {
	// NFKC folds the full-width letters to ASCII before lower-casing.
	assert.Equal(t, Terms("dns"), Terms("ＤＮＳ"))
	assert.Equal(t, []string{"überlauf"}, Terms("Überlauf"))
}

func TestTokenizeIsDeterministic(t *testing.T) {
	text := "Connection pool exhausted while the replicas were lagging behind"
	first := Tokenize(text, corpus.FieldWhatHappened)
	for i := 0; i < 50; i++ {
		require.Equal(t, first, Tokenize(text, corpus.FieldWhatHappened))
	}
}

func TestTokenizeIsIdempotent(t *testing.T) {
	texts := []string{
		"DNS Resolution Failure due to CoreDNS Pod Crash",
		"PVC Stuck in Terminating State",
		"Relational databases were throttling connections; retries kept failing.",
		"National rotational positional ongoing happiness carefully",
		"Ｆｕｌｌ-width ＴＥＸＴ and naïve café résumé",
	}
	for _, text := range texts {
		t.Run(text, func(t *testing.T) {
			once := Terms(text)
			twice := Terms(strings.Join(once, " "))
			assert.Equal(t, once, twice)
		})
	}
}

func TestStemIsFixedPoint(t *testing.T) {
	for _, w := range []string{"rotational", "connections", "happiness", "throttling", "failures", "running"} {
		s := stem(w)
		assert.Equal(t, s, stem(s), w)
	}
}

func TestTokenizeAllLeavesGapBetweenItems(t *testing.T) {
	tokens := TokenizeAll([]string{"restart pod", "", "check logs"}, corpus.FieldDiagnosisSteps)
	require.Len(t, tokens, 4)
	assert.Equal(t, 0, tokens[0].Position)
	assert.Equal(t, 1, tokens[1].Position)
	assert.Equal(t, 3, tokens[2].Position)
	assert.Equal(t, 4, tokens[3].Position)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "crash", Normalize("Crashes"))
	assert.Equal(t, "", Normalize("the"))
	assert.Equal(t, "", Normalize("?"))
}

func TestStopWordsSorted(t *testing.T) {
	words := StopWords()
	assert.IsIncreasing(t, words)
	assert.Contains(t, words, "to")
}

var sampleTexts = map[string]string{
	"short": "DNS Resolution Failure due to CoreDNS Pod Crash",
	"medium": `A ConfigMap change introduced a forwarding loop. CoreDNS detected the loop and
        exited, and every pod in the cluster lost name resolution. Services that cached
        addresses kept working for a few minutes before failing health checks.`,
	"long": strings.Repeat(`The persistent volume claim kept its protection finalizer because
        an orphaned pod still mounted the volume. Namespace deletion waited on the claim,
        and the deployment pipeline timed out after thirty minutes. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text, corpus.FieldWhatHappened)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = Tokenize(text, corpus.FieldWhatHappened)
		}
	})
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	baseWord := "coredns crashloop resolution failure "
	for _, size := range []int{10, 100, 500, 1000, 5000} {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text, corpus.FieldSummary)
			}
		})
	}
}
