package history

import "github.com/sahilm/fuzzy"

// searchPoolSize bounds how many recent commands the fuzzy matcher scans.
const searchPoolSize = 1000

// Match is one fuzzy search hit with the matched character positions for
// highlighting.
type Match struct {
	Entry          Entry
	Score          int
	MatchedIndexes []int
}

// entrySource adapts a slice of entries to fuzzy.Source.
type entrySource []Entry

func (s entrySource) String(i int) string { return s[i].Command }
func (s entrySource) Len() int            { return len(s) }

// Search fuzzy-matches query against recent command history, best matches
// first, with typo tolerance. An empty query returns the most recent
// commands unscored.
func (s *Store) Search(query string, limit int) ([]Match, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	entries, err := s.Recent(searchPoolSize)
	if err != nil {
		return nil, err
	}

	if query == "" {
		out := make([]Match, 0, min(limit, len(entries)))
		for _, e := range entries[:min(limit, len(entries))] {
			out = append(out, Match{Entry: e})
		}
		return out, nil
	}

	matches := fuzzy.FindFrom(query, entrySource(entries))
	out := make([]Match, 0, min(limit, len(matches)))
	for _, m := range matches {
		out = append(out, Match{
			Entry:          entries[m.Index],
			Score:          m.Score,
			MatchedIndexes: m.MatchedIndexes,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
