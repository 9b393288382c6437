package progress

import (
	"context"

	"github.com/JakeFAU/progress-overlay/internal/event"
)

// Sink is a presenter. Consume receives display updates in emission order;
// implementations must honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []event.Display) error
	Close(ctx context.Context) error
}

// Emitter publishes individual displays; Hub satisfies this interface so the
// tracker stays agnostic about how displays reach presenters.
type Emitter interface {
	Emit(d event.Display)
}
