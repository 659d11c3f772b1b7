package ticker

// Mode is what the ticker strip is currently scrolling.
type Mode int

const (
	ModeQuotes Mode = iota
	ModeNews
)

func (m Mode) String() string {
	switch m {
	case ModeQuotes:
		return "quotes"
	case ModeNews:
		return "news"
	default:
		return "unknown"
	}
}

// NextMode returns the mode that follows a completed scroll pass. Quotes hand
// over to news only when headlines are waiting; news always returns to quotes.
func NextMode(current Mode, newsPending bool) Mode {
	if current == ModeQuotes && newsPending {
		return ModeNews
	}
	return ModeQuotes
}
