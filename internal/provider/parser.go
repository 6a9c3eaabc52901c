package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"sportstream/internal/httputil"
	"sportstream/internal/media"
)

const defaultLanguage = "EN"

// ErrMalformed means a provider answered with JSON of no recognized shape.
var ErrMalformed = errors.New("unrecognized provider response")

// listKeys are the object keys that may wrap a stream list, checked in order.
var listKeys = []string{"streams", "data", "sources", "results", "items"}

// maxNesting bounds how deep wrapper objects are unwrapped.
const maxNesting = 3

// rawStream is a stream descriptor as providers send it. Field names vary between APIs.
type rawStream struct {
	EmbedURL      string          `json:"embedUrl"`
	EmbedURLSnake string          `json:"embed_url"`
	URL           string          `json:"url"`
	Language      string          `json:"language"`
	Lang          string          `json:"lang"`
	HD            json.RawMessage `json:"hd"`
	StreamNo      json.RawMessage `json:"streamNo"`
}

func (s rawStream) embed() string {
	return lo.CoalesceOrEmpty(strings.TrimSpace(s.EmbedURL), strings.TrimSpace(s.EmbedURLSnake), strings.TrimSpace(s.URL))
}

// record applies defaults. Source and match always come from the caller.
func (s rawStream) record(matchID, source, base string, index int) media.StreamRecord {
	rec := media.StreamRecord{
		EmbedURL:    s.embed(),
		Source:      source,
		MatchID:     matchID,
		StreamIndex: index,
		Language:    defaultLanguage,
		IsHD:        true,
		OriginBase:  base,
	}
	if lang := lo.CoalesceOrEmpty(strings.TrimSpace(s.Language), strings.TrimSpace(s.Lang)); lang != "" {
		rec.Language = lang
	}
	if hd, ok := parseBool(s.HD); ok {
		rec.IsHD = hd
	}
	if n, ok := parseInt(s.StreamNo); ok && n > 0 {
		rec.StreamIndex = n
	}
	return rec
}

// parseStreams accepts a bare array, an object wrapping an array under one of listKeys,
// or a single descriptor object. Items without a usable embed URL are dropped.
func parseStreams(body []byte) ([]rawStream, error) {
	return parseLevel(bytes.TrimSpace(body), 0)
}

func parseLevel(body []byte, depth int) ([]rawStream, error) {
	if len(body) == 0 || depth > maxNesting {
		return nil, ErrMalformed
	}

	switch body[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, errors.Join(ErrMalformed, err)
		}
		streams := make([]rawStream, 0, len(items))
		for _, item := range items {
			var s rawStream
			if json.Unmarshal(item, &s) != nil || httputil.ValidateURL(s.embed()) != nil {
				continue
			}
			streams = append(streams, s)
		}
		return streams, nil

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, errors.Join(ErrMalformed, err)
		}
		for _, key := range listKeys {
			if inner, ok := obj[key]; ok {
				if streams, err := parseLevel(bytes.TrimSpace(inner), depth+1); err == nil {
					return streams, nil
				}
			}
		}

		var s rawStream
		if err := json.Unmarshal(body, &s); err == nil && httputil.ValidateURL(s.embed()) == nil {
			return []rawStream{s}, nil
		}
		return nil, ErrMalformed

	default:
		return nil, ErrMalformed
	}
}

func parseBool(raw json.RawMessage) (bool, bool) {
	v := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if v == "" || v == "null" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	return b, err == nil
}

func parseInt(raw json.RawMessage) (int, bool) {
	v := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if v == "" || v == "null" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}
