package session

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/muhammadolammi/coverletter/internal/domain"
)

// MinOfferLength is the offer length, in characters, generation waits for.
const MinOfferLength = 100

// State is the request-scoped input of one interactive run. It is created
// by the presentation layer, mutated only by user input and never persisted.
type State struct {
	ID        uuid.UUID
	CreatedAt time.Time
	CVText    string
	OfferText string
	APIToken  string
	CVSource  string
}

// New returns an empty State with a fresh id.
func New(apiToken string) *State {
	return &State{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		APIToken:  apiToken,
	}
}

// SetCV records the extracted CV text and where it came from.
func (s *State) SetCV(source, text string) {
	s.CVSource = source
	s.CVText = text
}

// SetOffer records the pasted job offer.
func (s *State) SetOffer(text string) {
	s.OfferText = text
}

// Ready reports whether generation can start.
func (s *State) Ready() bool {
	return s.Validate() == nil
}

// Validate checks that a CV was loaded and the offer is long enough.
func (s *State) Validate() error {
	if strings.TrimSpace(s.CVText) == "" {
		return domain.NewInvalidInputError("upload your CV first")
	}
	if utf8.RuneCountInString(s.OfferText) <= MinOfferLength {
		return domain.NewInvalidInputError("paste the target job offer (more than 100 characters)")
	}
	return nil
}
