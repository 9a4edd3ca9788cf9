package task

import (
	"fmt"
	"strings"
)

// Kind is the scheduling category of a Description.
type Kind int

const (
	// KindInit runs once, before any continuous or periodic unit starts.
	KindInit Kind = iota
	// KindContinuous runs for its full lifetime alongside periodic units.
	KindContinuous
	// KindPeriodic is invoked repeatedly at a fixed frequency until shutdown.
	KindPeriodic
	// KindCleanup runs exactly once after all other phases stop.
	KindCleanup
)

// Kinds returns all kinds in phase order.
func Kinds() []Kind {
	return []Kind{KindInit, KindContinuous, KindPeriodic, KindCleanup}
}

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "init"
	case KindContinuous:
		return "continuous"
	case KindPeriodic:
		return "periodic"
	case KindCleanup:
		return "cleanup"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// kindSynonyms maps every accepted spelling (after normalization) to its kind.
var kindSynonyms = map[string]Kind{
	"init":           KindInit,
	"initial":        KindInit,
	"initialize":     KindInit,
	"initialise":     KindInit,
	"initialization": KindInit,
	"setup":          KindInit,
	"startup":        KindInit,
	"start":          KindInit,
	"once":           KindInit,
	"oneshot":        KindInit,
	"one-shot":       KindInit,

	"continuous":   KindContinuous,
	"continuously": KindContinuous,
	"forever":      KindContinuous,
	"long-running": KindContinuous,
	"longrunning":  KindContinuous,
	"background":   KindContinuous,
	"run":          KindContinuous,
	"always":       KindContinuous,

	"periodic":     KindPeriodic,
	"periodically": KindPeriodic,
	"periodical":   KindPeriodic,
	"repeat":       KindPeriodic,
	"repeated":     KindPeriodic,
	"repeating":    KindPeriodic,
	"recurring":    KindPeriodic,
	"every":        KindPeriodic,
	"interval":     KindPeriodic,
	"ticker":       KindPeriodic,

	"cleanup":  KindCleanup,
	"clean-up": KindCleanup,
	"teardown": KindCleanup,
	"shutdown": KindCleanup,
	"exit":     KindCleanup,
	"atexit":   KindCleanup,
	"on-exit":  KindCleanup,
	"finally":  KindCleanup,
	"final":    KindCleanup,
}

// ParseKind normalizes a free-form kind string. Matching is case-insensitive and
// treats '_' and ' ' like '-'.
func ParseKind(s string) (Kind, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)

	if k, ok := kindSynonyms[key]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTaskKind, s)
}
