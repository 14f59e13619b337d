package chunker

import "github.com/pkoukk/tiktoken-go"

// Counter counts tokens in a string using whatever tokenization scheme the
// configured embedding/chat model expects. Chunk budgets (chunk_size,
// max_table_tokens) are expressed in this unit.
type Counter interface {
	Count(text string) int
}

// TiktokenCounter counts real BPE tokens via pkoukk/tiktoken-go, giving the
// chunk-size and max-table-tokens budgets an accurate token count instead
// of a word-count estimate.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter builds a counter for the given model name, falling
// back to the gpt-3.5-turbo encoding (cl100k_base) for models tiktoken
// doesn't recognize by name — local inference models are typically
// close enough in tokenization for budget-accounting purposes.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.EncodingForModel("gpt-3.5-turbo")
		if err != nil {
			return nil, err
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}
