package wire

import "github.com/sebastianwebdev/procwire/internal/xerr"

// Mode selects which of the two dual-mode parsers (§9 design note) is
// currently driving Parser.Push.
type Mode int

const (
	ModeBatch Mode = iota
	ModeStreaming
)

// Parser composes BatchParser and StreamingParser behind one runtime mode
// switch. Switching modes is only allowed when nothing is buffered
// (§4.2); both parsers otherwise own strictly private state.
type Parser struct {
	mode    Mode
	batch   *BatchParser
	stream  *StreamingParser
	handler StreamHandler
	maxPayload uint32
}

// NewParser starts in batch mode by default.
func NewParser(opts ...BatchOption) *Parser {
	b := NewBatchParser(opts...)
	return &Parser{mode: ModeBatch, batch: b, maxPayload: b.maxPayload}
}

func (p *Parser) Mode() Mode { return p.mode }

func (p *Parser) HasBufferedData() bool {
	if p.mode == ModeStreaming {
		return p.stream.HasBufferedData()
	}
	return p.batch.HasBufferedData()
}

// SwitchToStreaming switches to streaming mode, failing if any bytes are
// currently buffered.
func (p *Parser) SwitchToStreaming(handler StreamHandler) error {
	if p.HasBufferedData() {
		return xerr.NewFramingError("wire: cannot switch to streaming mode with data buffered")
	}
	p.handler = handler
	p.stream = NewStreamingParser(handler, WithMaxPayload(p.maxPayload))
	p.mode = ModeStreaming
	return nil
}

// SwitchToBatch switches back to batch mode, failing if any bytes are
// currently buffered.
func (p *Parser) SwitchToBatch() error {
	if p.HasBufferedData() {
		return xerr.NewFramingError("wire: cannot switch to batch mode with data buffered")
	}
	p.batch = NewBatchParser(WithMaxPayload(p.maxPayload))
	p.mode = ModeBatch
	return nil
}

// Push feeds chunk to whichever parser is active. In batch mode it
// returns the frames completed by this push; in streaming mode the
// handler is invoked directly and Push always returns nil.
func (p *Parser) Push(chunk []byte) ([]Frame, error) {
	if p.mode == ModeStreaming {
		p.stream.Push(chunk)
		return nil, nil
	}
	return p.batch.Push(chunk)
}

func (p *Parser) Reset() {
	if p.mode == ModeStreaming {
		p.stream.Reset()
		return
	}
	p.batch.Reset()
}
