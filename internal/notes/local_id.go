package notes

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalIDPrefix marks identifiers minted on the client before the remote store
// has acknowledged the note.
const LocalIDPrefix = "local_"

const localSuffixLength = 7

// LocalIDMinter issues local note tokens of the form local_<millis>_<suffix>.
type LocalIDMinter struct {
	clock  func() time.Time
	suffix func() string
}

// NewLocalIDMinter constructs a minter. A nil clock defaults to time.Now and a
// nil suffix source defaults to random UUID hex.
func NewLocalIDMinter(clock func() time.Time, suffix func() string) *LocalIDMinter {
	if clock == nil {
		clock = time.Now
	}
	if suffix == nil {
		suffix = randomSuffix
	}
	return &LocalIDMinter{clock: clock, suffix: suffix}
}

// Mint returns a fresh local token.
func (m *LocalIDMinter) Mint() NoteID {
	return NoteID(fmt.Sprintf("%s%d_%s", LocalIDPrefix, m.clock().UnixMilli(), m.suffix()))
}

func randomSuffix() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[len(raw)-localSuffixLength:]
}
