// Package render turns a parsed media event into a Notification.
// Render is pure: the same event always yields the same notification.
package render

import (
	"fmt"
	"strings"

	"mediabot/internal/media"
	"mediabot/internal/notification"
	"mediabot/internal/subscription"
)

const (
	UnknownTitle = "Unknown!"
	DefaultColor = "#000000"
)

var palette = map[media.Type]string{
	media.TypeMovie:   "#FFC12B",
	media.TypeShow:    "#0344b7",
	media.TypeSeason:  "#034cce",
	media.TypeEpisode: "#0455e5",
	media.TypeArtist:  "#a31903",
	media.TypeAlbum:   "#b71c03",
	media.TypeTrack:   "#CC2004",
}

func Render(ev media.Event) notification.Notification {
	c := ev.Attrs()
	t := ev.Type()

	n := notification.Notification{
		Kind:      string(t),
		Preamble:  Preamble(t, c.LibraryName, c.ServerName),
		Title:     Title(ev),
		TitleLink: c.PlexURL,
		Body:      body(c),
		Fields:    fields(c),
		Links:     links(c),
		Color:     Color(t),
		ImageURL:  c.PosterURL,
	}
	if t.FollowsShow() {
		n.Subscribe = subscribeKeyword(media.ShowName(ev))
	}
	return n
}

func Preamble(t media.Type, library, server string) string {
	added := "added"
	if t.Updatable() {
		added = "added _(or updated)_"
	}
	return fmt.Sprintf("A new *%s* was recently %s in library *%s* on server *%s*.", t, added, library, server)
}

func Title(ev media.Event) string {
	switch e := ev.(type) {
	case media.Movie:
		if e.Year == "" {
			return e.Title
		}
		return fmt.Sprintf("%s (%s)", e.Title, e.Year)
	case media.Show:
		return e.ShowName
	case media.Season:
		return fmt.Sprintf("%s - S%s", e.ShowName, e.SeasonNum)
	case media.Episode:
		s := fmt.Sprintf("%s - S%sE%s", e.ShowName, e.SeasonNum, e.EpisodeNum)
		if e.EpisodeName != "" {
			s += " - " + e.EpisodeName
		}
		return s
	case media.Artist:
		return e.ArtistName
	case media.Album:
		return fmt.Sprintf("%s - %s", e.ArtistName, e.AlbumName)
	case media.Track:
		return fmt.Sprintf("%s - %s - %s", e.ArtistName, e.AlbumName, e.TrackName)
	default:
		return UnknownTitle
	}
}

func Color(t media.Type) string {
	if c, ok := palette[t]; ok {
		return c
	}
	return DefaultColor
}

func fields(c media.Common) []notification.Field {
	out := make([]notification.Field, 0, 7)
	add := func(label, value string, short bool) {
		if value != "" {
			out = append(out, notification.Field{Label: label, Value: value, Short: short})
		}
	}

	switch {
	case c.AirDate != "" && c.ReleaseDate != "":
		v := c.AirDate
		if c.AirDate != c.ReleaseDate {
			v = c.AirDate + "\n" + c.ReleaseDate
		}
		add("Aired/Released", v, true)
	case c.AirDate != "":
		add("Aired", c.AirDate, true)
	case c.ReleaseDate != "":
		add("Released", c.ReleaseDate, true)
	}

	add("Studio", c.Studio, true)
	add("Ratings", ratings(c), true)
	add("Genre(s)", c.Genres, true)
	add("Director(s)", c.Directors, true)
	add("Writer(s)", c.Writers, true)
	add("Actor(s)", c.Actors, false)
	return out
}

func ratings(c media.Common) string {
	lines := make([]string, 0, 3)
	if c.ContentRating != "" {
		lines = append(lines, "Content: "+c.ContentRating)
	}
	if c.CriticRating != "" {
		lines = append(lines, "Critic: "+c.CriticRating)
	}
	if c.AudienceRating != "" {
		lines = append(lines, "Audience: "+c.AudienceRating)
	}
	return strings.Join(lines, "\n")
}

func links(c media.Common) []notification.Link {
	all := []notification.Link{
		{Label: "View on Plex", URL: c.PlexURL},
		{Label: "View on IMDb", URL: c.IMDbURL},
		{Label: "View on TheMovieDB", URL: c.TheMovieDBURL},
		{Label: "View on TheTVDB", URL: c.TheTVDBURL},
		{Label: "View on TVMaze", URL: c.TVMazeURL},
		{Label: "View on Trakt.tv", URL: c.TraktURL},
		{Label: "View on Last.fm", URL: c.LastFMURL},
	}
	out := all[:0]
	for _, l := range all {
		if l.URL != "" {
			out = append(out, l)
		}
	}
	return out
}

func body(c media.Common) string {
	var lines []string
	if c.Tagline != "" {
		lines = append(lines, ">"+c.Tagline)
	}
	if c.Summary != "" {
		lines = append(lines, "*Summary: *"+c.Summary)
	}
	return strings.Join(lines, "\n")
}

// subscribeKeyword cuts the show name so the offered keyword is always accepted.
func subscribeKeyword(show string) string {
	r := []rune(strings.TrimSpace(show))
	if len(r) > subscription.MaxKeywordLength {
		r = r[:subscription.MaxKeywordLength]
	}
	return strings.TrimSpace(string(r))
}
