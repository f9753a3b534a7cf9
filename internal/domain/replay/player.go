package replay

import (
	"fmt"
	"time"

	"github.com/okian/ovation/internal/domain/model"
)

// Injector receives replayed inputs. A suppressed input capture implements
// it.
type Injector interface {
	Inject(ev model.InputEvent) error
}

// Player re-emits a log's inputs at their recorded song times.
type Player struct {
	log  Log
	next int
}

// NewPlayer validates l and returns a player positioned at its start.
func NewPlayer(l Log) (*Player, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &Player{log: l}, nil
}

// Log returns the log being played.
func (p *Player) Log() Log { return p.log }

// Pump injects every input recorded at or before now and returns how many
// were injected.
func (p *Player) Pump(now time.Duration, into Injector) (int, error) {
	n := 0
	for p.next < len(p.log.Events) && p.log.Events[p.next].At <= now {
		if err := into.Inject(p.log.Events[p.next]); err != nil {
			return n, fmt.Errorf("inject event %d: %w", p.next, err)
		}
		p.next++
		n++
	}
	return n, nil
}

// Done reports whether every input was injected.
func (p *Player) Done() bool { return p.next >= len(p.log.Events) }

// Remaining returns the number of inputs not yet injected.
func (p *Player) Remaining() int { return len(p.log.Events) - p.next }

// Last returns the song time of the final recorded input, or zero.
func (p *Player) Last() time.Duration {
	if len(p.log.Events) == 0 {
		return 0
	}
	return p.log.Events[len(p.log.Events)-1].At
}
