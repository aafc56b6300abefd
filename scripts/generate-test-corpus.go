//go:build ignore

// Package main generates a synthetic markdown library for exercising
// ingestion at scale.
// Usage: go run scripts/generate-test-corpus.go -files 500 -output testdata/corpus
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 500, "Number of files to generate")
	outputDir = flag.String("output", "testdata/corpus", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// source describes one tradition's shelf: where its files land and the
// frontmatter and sentence pools they draw from.
type source struct {
	dir         string
	religion    string
	language    string
	authors     []string
	collections []string
	sentences   []string
}

var english = source{
	dir:      "bahai",
	religion: "bahai",
	language: "en",
	authors: []string{
		"Baha'u'llah", "Abdu'l-Baha", "Shoghi Effendi", "The Bab",
	},
	collections: []string{
		"gleanings", "hidden-words", "kitab-i-iqan", "tablets", "prayers",
	},
	sentences: []string{
		"The earth is but one country, and mankind its citizens.",
		"Let your vision be world-embracing, rather than confined to your own self.",
		"The best beloved of all things in My sight is Justice; turn not away therefrom if thou desirest Me.",
		"Veiled in My immemorial being and in the ancient eternity of My essence, I knew My love for thee.",
		"Ye are the fruits of one tree, and the leaves of one branch.",
		"Knowledge is as wings to man's life, and a ladder for his ascent.",
		"The tongue of wisdom proclaimeth: he that hath Me not is bereft of all things.",
		"Be generous in prosperity, and thankful in adversity.",
		"O Son of Spirit! My first counsel is this: possess a pure, kindly and radiant heart.",
		"Regard man as a mine rich in gems of inestimable value.",
	},
}

var arabic = source{
	dir:      "islam",
	religion: "islam",
	language: "ar",
	authors: []string{
		"", "الإمام البخاري", "الإمام مسلم",
	},
	collections: []string{
		"quran", "sahih-bukhari", "sahih-muslim", "adhkar",
	},
	sentences: []string{
		"بسم الله الرحمن الرحيم",
		"الحمد لله رب العالمين",
		"الرحمن الرحيم مالك يوم الدين",
		"إياك نعبد وإياك نستعين",
		"اهدنا الصراط المستقيم",
		"إنما الأعمال بالنيات وإنما لكل امرئ ما نوى",
		"الدين النصيحة قلنا لمن قال لله ولكتابه ولرسوله",
		"من حسن إسلام المرء تركه ما لا يعنيه",
		"لا يؤمن أحدكم حتى يحب لأخيه ما يحب لنفسه",
	},
}

var persian = source{
	dir:      "bahai/persian",
	religion: "bahai",
	language: "fa",
	authors: []string{
		"Baha'u'llah", "Abdu'l-Baha",
	},
	collections: []string{
		"hidden-words-persian", "seven-valleys", "tablets-persian",
	},
	sentences: []string{
		"ای دوستان سراپرده یگانگی بلند شد",
		"به چشم بیگانگان یکدیگر را مبینید",
		"همه بار یک دارید و برگ یک شاخسار",
		"ای پسر روح هر طیری را نظر بر آشیان است",
		"ای اهل زمین دین الهی از برای محبت و اتحاد است",
		"او را به جان و دل بجویید تا بیابید",
	},
}

var titleWords = []string{
	"Gleanings", "Tablets", "Epistles", "Meditations", "Selections",
	"Prayers", "Reflections", "Counsels", "Teachings", "Passages",
	"Addresses", "Commentaries", "Fragments", "Verses", "Summons",
}

var themes = []string{
	"Unity", "Justice", "Wisdom", "Detachment", "Service",
	"Knowledge", "Creation", "the Covenant", "the Soul", "Certitude",
	"Remembrance", "Patience", "Radiance", "Truthfulness", "Mercy",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for _, src := range []source{english, arabic, persian} {
		if err := os.MkdirAll(filepath.Join(*outputDir, src.dir), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", src.dir, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generating %d files in %s...\n", *numFiles, *outputDir)

	// 60% English, 20% Arabic, 10% Persian; the rest carry no
	// frontmatter so ingestion derives identity from the file name.
	enFiles := *numFiles * 60 / 100
	arFiles := *numFiles * 20 / 100
	faFiles := *numFiles * 10 / 100
	bareFiles := *numFiles - enFiles - arFiles - faFiles

	generated := 0
	for i := 0; i < enFiles; i++ {
		if err := writeDoc(rng, english, i, true); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating file %d: %v\n", i, err)
			continue
		}
		generated++
	}
	for i := 0; i < arFiles; i++ {
		if err := writeDoc(rng, arabic, i, true); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating file %d: %v\n", i, err)
			continue
		}
		generated++
	}
	for i := 0; i < faFiles; i++ {
		if err := writeDoc(rng, persian, i, true); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating file %d: %v\n", i, err)
			continue
		}
		generated++
	}
	for i := 0; i < bareFiles; i++ {
		if err := writeDoc(rng, english, enFiles+i, false); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating file %d: %v\n", i, err)
			continue
		}
		generated++
	}

	fmt.Printf("Generated %d files successfully.\n", generated)
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

// writeDoc emits one markdown file with 2 to 6 paragraphs. With
// frontmatter off the file starts at the body, which exercises the
// filename-derived identity path.
func writeDoc(rng *rand.Rand, src source, index int, frontmatter bool) error {
	title := fmt.Sprintf("%s on %s", pick(rng, titleWords), pick(rng, themes))
	collection := pick(rng, src.collections)

	var b strings.Builder
	if frontmatter {
		b.WriteString("---\n")
		b.WriteString("title: " + title + "\n")
		if author := pick(rng, src.authors); author != "" {
			b.WriteString("author: " + author + "\n")
		}
		b.WriteString("religion: " + src.religion + "\n")
		b.WriteString("collection: " + collection + "\n")
		b.WriteString("language: " + src.language + "\n")
		// A tenth of the corpus pins an explicit authority override.
		if rng.Intn(10) == 0 {
			b.WriteString(fmt.Sprintf("authority: %d\n", 1+rng.Intn(10)))
		}
		b.WriteString("---\n\n")
	}

	paragraphs := 2 + rng.Intn(5)
	for p := 0; p < paragraphs; p++ {
		sentences := 1 + rng.Intn(4)
		parts := make([]string, sentences)
		for s := 0; s < sentences; s++ {
			parts[s] = pick(rng, src.sentences)
		}
		b.WriteString(strings.Join(parts, " "))
		b.WriteString("\n\n")
	}

	name := fmt.Sprintf("%s-%03d.md", collection, index)
	return os.WriteFile(filepath.Join(*outputDir, src.dir, name), []byte(b.String()), 0644)
}
