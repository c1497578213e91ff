package media

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"mediabot/internal/validation"
)

// ErrInvalid marks payloads that cannot become an Event.
var ErrInvalid = errors.New("invalid media event")

var validate = validation.New()

// Decode reads one JSON object and parses it.
func Decode(r io.Reader) (Event, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return Parse(raw)
}

// Parse builds the variant named by raw["media_type"].
// Scalars of any JSON kind are accepted as text; lists are joined with ", ".
func Parse(raw map[string]any) (Event, error) {
	attrs := flatten(raw)
	mt := strings.ToLower(strings.TrimSpace(attrs["media_type"]))
	if mt == "" {
		return nil, fmt.Errorf("%w: media_type is required", ErrInvalid)
	}
	attrs["media_type"] = mt

	var ev Event
	var err error
	switch Type(mt) {
	case TypeMovie:
		ev, err = decodeAs[Movie](attrs)
	case TypeShow:
		ev, err = decodeAs[Show](attrs)
	case TypeSeason:
		ev, err = decodeAs[Season](attrs)
	case TypeEpisode:
		ev, err = decodeAs[Episode](attrs)
	case TypeArtist:
		ev, err = decodeAs[Artist](attrs)
	case TypeAlbum:
		ev, err = decodeAs[Album](attrs)
	case TypeTrack:
		ev, err = decodeAs[Track](attrs)
	default:
		ev, err = decodeAs[Unknown](attrs)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeAs[T Event](attrs map[string]string) (Event, error) {
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := validate.Struct(v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, v.Type(), err)
	}
	return v, nil
}

// flatten turns decoded JSON into trimmed text attributes.
// Blank values are dropped so "present" always means non-empty.
func flatten(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		s := strings.TrimSpace(text(v))
		if s == "" {
			continue
		}
		out[k] = s
	}
	return out
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, it := range x {
			if s := strings.TrimSpace(text(it)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// DecodeForm extracts the JSON document carried in a form "payload" field.
func DecodeForm(payload string) (Event, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, fmt.Errorf("%w: empty payload field", ErrInvalid)
	}
	return Decode(bytes.NewReader([]byte(payload)))
}
