package capability

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// FuzzyModule is a hand-built module over bleve/v2, adapting the teacher's
// own "index a tool catalogue, search it" shape (internal/index.Manager) to
// an ephemeral, in-memory index built fresh on every call over whatever
// items the script hands in, via bleve.NewMemOnly.
func FuzzyModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "fuzzy",
		Members: starlark.StringDict{
			"search":             starlark.NewBuiltin("fuzzy.search", fuzzySearch),
			"search_with_scores": starlark.NewBuiltin("fuzzy.search_with_scores", fuzzySearchWithScores),
		},
	}
}

type fuzzyHit struct {
	item  starlark.Value
	index int
	score float64
}

func fuzzySearch(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	hits, err := runFuzzySearch(args, kwargs, b.Name())
	if err != nil {
		return nil, err
	}
	out := starlark.NewList(nil)
	for _, h := range hits {
		if err := out.Append(h.item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func fuzzySearchWithScores(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	hits, err := runFuzzySearch(args, kwargs, b.Name())
	if err != nil {
		return nil, err
	}
	out := starlark.NewList(nil)
	for _, h := range hits {
		entry := starlark.NewDict(2)
		_ = entry.SetKey(starlark.String("item"), h.item)
		_ = entry.SetKey(starlark.String("score"), starlark.MakeInt(int(h.score)))
		if err := out.Append(entry); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func runFuzzySearch(args starlark.Tuple, kwargs []starlark.Tuple, name string) ([]fuzzyHit, error) {
	var (
		queryStr string
		items    *starlark.List
		key      string
		keys     *starlark.List
		limit    = 10
	)
	if err := starlark.UnpackArgs(name, args, kwargs,
		"query", &queryStr,
		"items", &items,
		"key?", &key,
		"keys?", &keys,
		"limit?", &limit,
	); err != nil {
		return nil, err
	}

	var keyList []string
	if key != "" {
		keyList = []string{key}
	} else if keys != nil {
		iter := keys.Iterate()
		defer iter.Done()
		var v starlark.Value
		for iter.Next(&v) {
			s, ok := starlark.AsString(v)
			if !ok {
				return nil, fmt.Errorf("%s: keys entries must be strings", name)
			}
			keyList = append(keyList, s)
		}
	}

	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("%s: building index: %v", name, err)
	}
	defer idx.Close()

	type doc struct {
		Text string
	}

	originals := make([]starlark.Value, 0, items.Len())
	iter := items.Iterate()
	defer iter.Done()
	var v starlark.Value
	i := 0
	for iter.Next(&v) {
		originals = append(originals, v)
		text := textForItem(v, keyList)
		id := strconv.Itoa(i)
		if err := idx.Index(id, doc{Text: text}); err != nil {
			return nil, fmt.Errorf("%s: indexing item %d: %v", name, i, err)
		}
		i++
	}

	mq := bleve.NewMatchQuery(queryStr)
	if fq, ok := any(mq).(*query.MatchQuery); ok {
		fq.SetFuzziness(2)
	}
	req := bleve.NewSearchRequest(mq)
	req.Size = len(originals)
	if req.Size == 0 {
		req.Size = 1
	}

	result, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("%s: search: %v", name, err)
	}

	hits := make([]fuzzyHit, 0, len(result.Hits))
	for _, h := range result.Hits {
		itemIdx, err := strconv.Atoi(h.ID)
		if err != nil || itemIdx < 0 || itemIdx >= len(originals) {
			continue
		}
		hits = append(hits, fuzzyHit{item: originals[itemIdx], index: itemIdx, score: h.Score})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].index < hits[b].index
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// textForItem extracts the text bleve should match against: the value at
// key/keys when item is a mapping, else the item's own string value.
func textForItem(v starlark.Value, keys []string) string {
	if len(keys) == 0 {
		s, _ := starlark.AsString(v)
		if s == "" {
			return v.String()
		}
		return s
	}
	dict, ok := v.(*starlark.Dict)
	if !ok {
		s, _ := starlark.AsString(v)
		return s
	}
	var parts []string
	for _, k := range keys {
		val, found, _ := dict.Get(starlark.String(k))
		if !found {
			continue
		}
		if s, ok := starlark.AsString(val); ok {
			parts = append(parts, s)
		} else {
			parts = append(parts, val.String())
		}
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
