package playback

// DefaultMapStyle is the basemap selected for a new session.
const DefaultMapStyle = "mapbox://styles/mapbox/dark-v11"

// MapStyle is a named basemap style URL offered to the front-end.
type MapStyle struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MapStyles lists the basemaps offered by the style picker. SetMapStyle
// accepts any string; this list is advisory.
var MapStyles = []MapStyle{
	{Name: "Dark", Value: "mapbox://styles/mapbox/dark-v11"},
	{Name: "Light", Value: "mapbox://styles/mapbox/light-v11"},
	{Name: "Satellite", Value: "mapbox://styles/mapbox/satellite-v9"},
	{Name: "Satellite Streets", Value: "mapbox://styles/mapbox/satellite-streets-v12"},
	{Name: "Streets", Value: "mapbox://styles/mapbox/streets-v12"},
	{Name: "Outdoors", Value: "mapbox://styles/mapbox/outdoors-v12"},
	{Name: "Navigation Day", Value: "mapbox://styles/mapbox/navigation-day-v1"},
	{Name: "Navigation Night", Value: "mapbox://styles/mapbox/navigation-night-v1"},
}
