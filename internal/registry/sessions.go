package registry

import (
	"slices"
	"strings"

	"github.com/signdata/signdata-processing-service/internal/domain/entity"
)

type SessionFilter struct {
	User  string
	Label string
	Date  string
}

// Sessions groups samples by session_id in first-seen order.
func (r *Registry) Sessions(filter SessionFilter) ([]entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	labels, err := r.readLabels()
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(labels))
	for _, l := range labels {
		names[l.ClassIdx] = l.LabelOriginal
	}

	samples, err := r.readSamples()
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(filter.Label)
	index := map[string]int{}
	var sessions []entity.Session
	for _, s := range samples {
		name := names[s.ClassIdx]
		if filter.User != "" && s.User != filter.User {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(name), needle) {
			continue
		}
		if filter.Date != "" && !strings.HasPrefix(s.CreatedAt, filter.Date) {
			continue
		}

		i, ok := index[s.SessionID]
		if !ok {
			i = len(sessions)
			index[s.SessionID] = i
			sessions = append(sessions, entity.Session{
				SessionID: s.SessionID,
				User:      s.User,
				Labels:    []string{},
				CreatedAt: s.CreatedAt,
			})
		}
		sess := &sessions[i]
		sess.SamplesCount++
		if name != "" && !slices.Contains(sess.Labels, name) {
			sess.Labels = append(sess.Labels, name)
		}
	}
	return sessions, nil
}
