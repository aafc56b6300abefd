package chunk

// Default tuning parameters, in characters.
const (
	DefaultMaxChunk = 1500
	DefaultMinChunk = 100
	DefaultOverlap  = 150
)

// BlockType classifies the shape of the source block a chunk came from.
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockHeading   BlockType = "heading"
	BlockQuote     BlockType = "quote"
	BlockVerse     BlockType = "verse"
	BlockNoise     BlockType = "noise"
)

// Chunk is one paragraph-level unit of a document body.
type Chunk struct {
	Text      string
	Index     int
	Heading   string // nearest preceding markdown heading, "" if none
	BlockType BlockType
}

// Options configures the chunker behavior.
type Options struct {
	MaxChunk int // maximum characters per chunk (default: DefaultMaxChunk)
	MinChunk int // candidates below this are dropped (default: DefaultMinChunk)
	Overlap  int // carry-over between split chunks (default: DefaultOverlap)
}
