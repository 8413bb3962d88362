package tile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"net/http"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

var ErrFetch = errors.New("pixeltiles: fetch failed")

// Loader provides the image of a tile and reports how far loading it got.
type Loader interface {
	State() State
	// Image returns the decoded image once loaded, a placeholder otherwise.
	Image() image.Image
}

// Fetcher retrieves the encoded bytes behind a tile url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// HTTPFetcher fetches tiles over http(s).
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s responded %s", ErrFetch, url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// FileFetcher reads tiles from the local filesystem, urls may carry a file:// prefix.
type FileFetcher struct{}

func (FileFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, err := os.ReadFile(strings.TrimPrefix(url, "file://"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return data, nil
}

// DefaultFetcher picks the http or file fetcher based on the url scheme.
func DefaultFetcher() Fetcher {
	httpFetcher := HTTPFetcher{}
	return FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
			return httpFetcher.Fetch(ctx, url)
		}
		return FileFetcher{}.Fetch(ctx, url)
	})
}

// ImageLoader loads and decodes the image behind a url.
// It is not safe for concurrent use.
type ImageLoader struct {
	url     string
	fetcher Fetcher
	state   State
	image   image.Image
}

// placeholder is what an ImageLoader returns until the image is decoded.
var placeholder image.Image = image.NewRGBA(image.Rectangle{})

func NewImageLoader(url string, fetcher Fetcher) *ImageLoader {
	return &ImageLoader{
		url:     url,
		fetcher: fetcher,
		state:   Idle,
		image:   placeholder,
	}
}

func (l *ImageLoader) URL() string {
	return l.url
}

func (l *ImageLoader) State() State {
	return l.state
}

func (l *ImageLoader) Image() image.Image {
	return l.image
}

// Load fetches and decodes the image. Only an idle loader does any work, a failed load
// is not retried.
func (l *ImageLoader) Load(ctx context.Context) error {
	if l.state != Idle {
		return nil
	}
	l.state = Loading
	data, err := l.fetcher.Fetch(ctx, l.url)
	if err != nil {
		return l.fail(err)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return l.fail(fmt.Errorf("decoding %s: %w", l.url, err))
	}
	l.image = img
	l.state = Loaded
	log.WithFields(log.Fields{"url": l.url, "format": format}).Debugf("loaded tile image %v", img.Bounds().Size())
	return nil
}

func (l *ImageLoader) fail(err error) error {
	l.state = Error
	log.WithField("url", l.url).Warnf("could not load tile image: %v", err)
	return err
}
