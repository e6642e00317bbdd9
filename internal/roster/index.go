package roster

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrInvalidUpdate = errors.New("roster update has neither attendee nor snapshot")
)

// Update is a roster event for one session. A non-nil Publishers replaces the
// whole set of video publishers, otherwise AttendeeID toggles a single entry.
type Update struct {
	SessionID  string   `json:"session_id"`
	AttendeeID string   `json:"attendee_id,omitempty"`
	Publishing bool     `json:"publishing,omitempty"`
	Publishers []string `json:"publishers"`
}

// Index tracks which attendees currently publish video.
type Index struct {
	lock       sync.RWMutex
	publishers map[string]struct{}
}

func NewIndex() *Index {
	return &Index{
		publishers: make(map[string]struct{}),
	}
}

func (i *Index) Apply(u Update) error {
	if u.Publishers == nil && u.AttendeeID == "" {
		return ErrInvalidUpdate
	}

	i.lock.Lock()
	defer i.lock.Unlock()

	if u.Publishers != nil {
		i.publishers = make(map[string]struct{}, len(u.Publishers))
		for _, id := range u.Publishers {
			if id != "" {
				i.publishers[id] = struct{}{}
			}
		}
		return nil
	}

	if u.Publishing {
		i.publishers[u.AttendeeID] = struct{}{}
	} else {
		delete(i.publishers, u.AttendeeID)
	}

	return nil
}

// Publishers returns attendee IDs sorted for stable output.
func (i *Index) Publishers() []string {
	i.lock.RLock()
	defer i.lock.RUnlock()

	ids := make([]string, 0, len(i.publishers))
	for id := range i.publishers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

func (i *Index) NumberOfVideoPublishingParticipantsExcludingSelf(selfAttendeeID string) int {
	i.lock.RLock()
	defer i.lock.RUnlock()

	n := len(i.publishers)
	if _, ok := i.publishers[selfAttendeeID]; ok {
		n--
	}
	return n
}
