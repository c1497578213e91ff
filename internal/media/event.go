// Package media models the "recently added" webhook payload as one variant
// per media type. Parse validates the attributes each variant needs before
// anything downstream sees the event.
package media

type Type string

const (
	TypeMovie   Type = "movie"
	TypeShow    Type = "show"
	TypeSeason  Type = "season"
	TypeEpisode Type = "episode"
	TypeArtist  Type = "artist"
	TypeAlbum   Type = "album"
	TypeTrack   Type = "track"
)

// Updatable reports whether the source re-sends this type when existing
// items gain children, so "added" may really mean "updated".
func (t Type) Updatable() bool {
	switch t {
	case TypeShow, TypeSeason, TypeArtist, TypeAlbum:
		return true
	}
	return false
}

// FollowsShow reports whether the event belongs to a TV show a user can
// subscribe to by name.
func (t Type) FollowsShow() bool {
	switch t {
	case TypeShow, TypeSeason, TypeEpisode:
		return true
	}
	return false
}

// Common carries the attributes shared by every media type.
// Empty strings mean "not provided".
type Common struct {
	MediaType   string `json:"media_type"`
	LibraryName string `json:"library_name"`
	ServerName  string `json:"server_name"`

	AirDate     string `json:"air_date"`
	ReleaseDate string `json:"release_date"`
	Studio      string `json:"studio"`

	ContentRating  string `json:"content_rating"`
	CriticRating   string `json:"critic_rating"`
	AudienceRating string `json:"audience_rating"`

	Genres    string `json:"genres"`
	Directors string `json:"directors"`
	Writers   string `json:"writers"`
	Actors    string `json:"actors"`

	Tagline string `json:"tagline"`
	Summary string `json:"summary"`

	PosterURL     string `json:"poster_url"`
	PlexURL       string `json:"plex_url"`
	IMDbURL       string `json:"imdb_url"`
	TheMovieDBURL string `json:"themoviedb_url"`
	TheTVDBURL    string `json:"thetvdb_url"`
	TVMazeURL     string `json:"tvmaze_url"`
	TraktURL      string `json:"trakt_url"`
	LastFMURL     string `json:"lastfm_url"`
}

// Event is one parsed payload. The concrete type is one of Movie, Show,
// Season, Episode, Artist, Album, Track or Unknown.
type Event interface {
	Type() Type
	Attrs() Common
}

type Movie struct {
	Common
	Title string `json:"title" validate:"required"`
	Year  string `json:"year"`
}

type Show struct {
	Common
	ShowName string `json:"show_name" validate:"required"`
}

type Season struct {
	Common
	ShowName  string `json:"show_name" validate:"required"`
	SeasonNum string `json:"season_num00" validate:"required"`
}

type Episode struct {
	Common
	ShowName    string `json:"show_name" validate:"required"`
	SeasonNum   string `json:"season_num00" validate:"required"`
	EpisodeNum  string `json:"episode_num00" validate:"required"`
	EpisodeName string `json:"episode_name"`
}

type Artist struct {
	Common
	ArtistName string `json:"artist_name" validate:"required"`
}

type Album struct {
	Common
	ArtistName string `json:"artist_name" validate:"required"`
	AlbumName  string `json:"album_name" validate:"required"`
}

type Track struct {
	Common
	ArtistName string `json:"artist_name" validate:"required"`
	AlbumName  string `json:"album_name" validate:"required"`
	TrackName  string `json:"track_name" validate:"required"`
}

// Unknown is any media_type this package does not model.
type Unknown struct {
	Common
}

func (e Movie) Type() Type   { return TypeMovie }
func (e Show) Type() Type    { return TypeShow }
func (e Season) Type() Type  { return TypeSeason }
func (e Episode) Type() Type { return TypeEpisode }
func (e Artist) Type() Type  { return TypeArtist }
func (e Album) Type() Type   { return TypeAlbum }
func (e Track) Type() Type   { return TypeTrack }
func (e Unknown) Type() Type { return Type(e.MediaType) }

func (e Movie) Attrs() Common   { return e.Common }
func (e Show) Attrs() Common    { return e.Common }
func (e Season) Attrs() Common  { return e.Common }
func (e Episode) Attrs() Common { return e.Common }
func (e Artist) Attrs() Common  { return e.Common }
func (e Album) Attrs() Common   { return e.Common }
func (e Track) Attrs() Common   { return e.Common }
func (e Unknown) Attrs() Common { return e.Common }

// ShowName returns the show an event belongs to, if any.
func ShowName(ev Event) string {
	switch e := ev.(type) {
	case Show:
		return e.ShowName
	case Season:
		return e.ShowName
	case Episode:
		return e.ShowName
	}
	return ""
}
