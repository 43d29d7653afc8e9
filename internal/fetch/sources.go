package fetch

import "github.com/abelbrown/discover/internal/model"

// DefaultSources returns a small built-in registry used when the config
// lists no sources.
func DefaultSources() []model.SourceDescriptor {
	return []model.SourceDescriptor{
		// Books
		{Name: "Project Gutenberg", URL: "https://www.gutenberg.org", ExploreURL: "https://www.gutenberg.org/cache/epub/feeds/today.rss",
			Type: model.SourceText, Weight: 60, Enabled: true},
		{Name: "Standard Ebooks", URL: "https://standardebooks.org", ExploreURL: "https://standardebooks.org/feeds/rss/new-releases",
			Type: model.SourceText, Weight: 70, Enabled: true},

		// Audiobooks
		{Name: "LibriVox", URL: "https://librivox.org", ExploreURL: "https://librivox.org/rss/latest_releases",
			Type: model.SourceAudio, Weight: 60, Enabled: true},

		// Images
		{Name: "NASA Image of the Day", URL: "https://www.nasa.gov", ExploreURL: "https://www.nasa.gov/feeds/iotd-feed/",
			Type: model.SourceImage, Weight: 40, Enabled: true},

		// Music
		{Name: "Free Music Archive", URL: "https://freemusicarchive.org", ExploreURL: "https://freemusicarchive.org/featured.atom",
			Type: model.SourceAudio, ManualCategory: model.Music, Weight: 30, Enabled: true},

		// Files
		{Name: "Internet Archive", URL: "https://archive.org", ExploreURL: "https://archive.org/services/collection-rss.php?collection=opensource",
			Type: model.SourceFile, Weight: 20, Enabled: true},
	}
}
